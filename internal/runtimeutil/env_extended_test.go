package runtimeutil

import (
	"os"
	"testing"
)

func withAmplifyEnv(t *testing.T, value string) {
	t.Helper()
	saved, had := os.LookupEnv("AMPLIFY_ENVIRONMENT")
	t.Cleanup(func() {
		if had {
			os.Setenv("AMPLIFY_ENVIRONMENT", saved)
		} else {
			os.Unsetenv("AMPLIFY_ENVIRONMENT")
		}
	})
	if value == "" {
		os.Unsetenv("AMPLIFY_ENVIRONMENT")
	} else {
		os.Setenv("AMPLIFY_ENVIRONMENT", value)
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Run("true when development", func(t *testing.T) {
		withAmplifyEnv(t, "development")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		withAmplifyEnv(t, "production")
		if IsDevelopment() {
			t.Error("IsDevelopment() should return false for production")
		}
	})

	t.Run("true when unset (default)", func(t *testing.T) {
		withAmplifyEnv(t, "")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true when env is unset")
		}
	})
}

func TestIsSandbox(t *testing.T) {
	t.Run("true when sandbox", func(t *testing.T) {
		withAmplifyEnv(t, "sandbox")
		if !IsSandbox() {
			t.Error("IsSandbox() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		withAmplifyEnv(t, "development")
		if IsSandbox() {
			t.Error("IsSandbox() should return false for development")
		}
	})
}

func TestIsProduction(t *testing.T) {
	t.Run("true when production", func(t *testing.T) {
		withAmplifyEnv(t, "production")
		if !IsProduction() {
			t.Error("IsProduction() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		withAmplifyEnv(t, "development")
		if IsProduction() {
			t.Error("IsProduction() should return false for development")
		}
	})
}

func TestIsDevelopmentOrSandbox(t *testing.T) {
	t.Run("true when development", func(t *testing.T) {
		withAmplifyEnv(t, "development")
		if !IsDevelopmentOrSandbox() {
			t.Error("IsDevelopmentOrSandbox() should return true for development")
		}
	})

	t.Run("true when sandbox", func(t *testing.T) {
		withAmplifyEnv(t, "sandbox")
		if !IsDevelopmentOrSandbox() {
			t.Error("IsDevelopmentOrSandbox() should return true for sandbox")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		withAmplifyEnv(t, "production")
		if IsDevelopmentOrSandbox() {
			t.Error("IsDevelopmentOrSandbox() should return false for production")
		}
	})
}

func TestEnv(t *testing.T) {
	t.Run("reads AMPLIFY_ENVIRONMENT", func(t *testing.T) {
		withAmplifyEnv(t, "production")
		if Env() != Production {
			t.Error("Env() should read AMPLIFY_ENVIRONMENT")
		}
	})

	t.Run("defaults to development when unset", func(t *testing.T) {
		withAmplifyEnv(t, "")
		if Env() != Development {
			t.Error("Env() should default to development")
		}
	})
}

func TestParseEnvironmentEdgeCases(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		env, ok := ParseEnvironment("PRODUCTION")
		if !ok || env != Production {
			t.Error("ParseEnvironment should be case insensitive")
		}
	})

	t.Run("mixed case", func(t *testing.T) {
		env, ok := ParseEnvironment("DeVeLoPmEnT")
		if !ok || env != Development {
			t.Error("ParseEnvironment should handle mixed case")
		}
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		env, ok := ParseEnvironment("  sandbox  ")
		if !ok || env != Sandbox {
			t.Error("ParseEnvironment should trim whitespace")
		}
	})

	t.Run("unknown returns development with ok=false", func(t *testing.T) {
		env, ok := ParseEnvironment("staging")
		if ok {
			t.Error("ParseEnvironment should return ok=false for unknown")
		}
		if env != Development {
			t.Error("ParseEnvironment should return Development for unknown")
		}
	})
}
