package supervisor

import (
	"context"
	"sync"
)

// ExternalManager is a manager loaded outside the fixed core order
// ([system, nginx, status, api]) — the Go stand-in for the original's
// dynamically package-scanned amplify.ext.* managers (supervisor.py's
// load_ext_managers). Go has no runtime package introspection, so
// extensions are registered explicitly at construction time via
// Supervisor.Options.ExternalManagers instead of being discovered by
// walking a package tree; this is a deliberate, named simplification, not
// an attempt to port pkgutil.iter_modules.
type ExternalManager interface {
	Name() string
	Run(ctx context.Context) error
}

// extRunner tracks one supervised ExternalManager goroutine: whether it is
// currently running, and the error (if any) its last run ended with.
// Mirrors manage_external_managers' use of gevent's thread.dead/
// thread.ready/thread.exception to decide whether to (re)spawn.
type extRunner struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	alive   bool
}

func (s *Supervisor) startExtManagers(ctx context.Context) {
	for _, em := range s.extManagers {
		s.spawnExtManager(ctx, em)
	}
}

func (s *Supervisor) spawnExtManager(ctx context.Context, em ExternalManager) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &extRunner{cancel: cancel, done: make(chan struct{}), alive: true}

	s.mu.Lock()
	s.extRunners[em.Name()] = r
	s.mu.Unlock()

	go func() {
		defer close(r.done)
		err := em.Run(runCtx)
		r.mu.Lock()
		r.lastErr = err
		r.alive = false
		r.mu.Unlock()
	}()

	if s.logger != nil {
		s.logger.WithContext(ctx).WithField("manager", em.Name()).Debug("starting external manager")
	}
}

// manageExternalManagers respawns any external manager whose goroutine has
// exited, matching manage_external_managers' dead/crashed-thread restart
// loop. A manager that exits with a nil error (clean shutdown) is still
// respawned, the same as the original restarting on thread.dead regardless
// of cause.
func (s *Supervisor) manageExternalManagers(ctx context.Context) {
	s.mu.Lock()
	managers := make([]ExternalManager, 0, len(s.extManagers))
	for _, em := range s.extManagers {
		managers = append(managers, em)
	}
	s.mu.Unlock()

	for _, em := range managers {
		s.mu.Lock()
		runner := s.extRunners[em.Name()]
		s.mu.Unlock()

		if runner == nil {
			s.spawnExtManager(ctx, em)
			continue
		}

		select {
		case <-runner.done:
			if s.logger != nil {
				runner.mu.Lock()
				err := runner.lastErr
				runner.mu.Unlock()
				s.logger.WithContext(ctx).WithField("manager", em.Name()).WithError(err).
					Debug("restarting external manager after exit")
			}
			s.spawnExtManager(ctx, em)
		default:
			// still running
		}
	}
}

func (s *Supervisor) stopExtManagers() {
	s.mu.Lock()
	runners := make([]*extRunner, 0, len(s.extRunners))
	for _, r := range s.extRunners {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	for _, r := range runners {
		r.cancel()
	}
}
