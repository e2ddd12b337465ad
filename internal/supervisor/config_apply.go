package supervisor

import (
	"context"
	"reflect"
)

// applyCloudConfig folds one CloudResponse into the Supervisor's object
// configs and agent config, and decides whether anything needs to restart.
// A direct port of the second half of talk_to_cloud (supervisor.py).
func (s *Supervisor) applyCloudConfig(ctx context.Context, resp *CloudResponse, initial bool) {
	changedManagers := s.applyObjectConfigs(ctx, resp.Objects)

	patch := resp.Config
	if patch == nil {
		patch = map[string]map[string]interface{}{}
	}
	if s.freezeAPIURL {
		if cloud, ok := patch["cloud"]; ok {
			delete(cloud, "api_url")
		}
	}

	configChanged := !treeMatchesOnlyExisting(patch, s.cfg.Default())
	s.cfg.Apply(patch)

	if !configChanged && len(changedManagers) == 0 {
		return
	}

	if s.bridgeInstance != nil {
		s.bridgeInstance.FlushMetrics(ctx)
	}

	if configChanged {
		if s.logger != nil {
			s.logger.WithContext(ctx).Debug("app config has changed, applying new settings")
		}
		s.updateCloudURL()
		s.stopAllObjectManagers()
		s.stopExtManagers()

		if !initial {
			s.startExtManagers(ctx)
		}
		return
	}

	for name := range changedManagers {
		if om, ok := s.objectManagers[name]; ok {
			if s.logger != nil {
				s.logger.WithContext(ctx).WithField("manager", name).Debug("object config changed, restarting manager's objects")
			}
			om.Stop()
		}
	}
}

// applyObjectConfigs updates the per-manager, per-object-id config
// side-table (the Go stand-in for each AbstractManager's own
// object_configs dict) and returns the set of manager names whose objects'
// configs changed or were purged this round.
func (s *Supervisor) applyObjectConfigs(ctx context.Context, objects []CloudObject) map[string]bool {
	changed := make(map[string]bool)
	matched := make(map[string]map[int]bool)

	for _, obj := range objects {
		if _, ok := s.objectManagers[obj.Type]; !ok {
			continue
		}

		if s.objectConfigs[obj.Type] == nil {
			s.objectConfigs[obj.Type] = make(map[int]map[string]interface{})
		}
		if matched[obj.Type] == nil {
			matched[obj.Type] = make(map[int]bool)
		}

		if _, known := s.objectConfigs[obj.Type][obj.ID]; known {
			matched[obj.Type][obj.ID] = true
		}

		if !reflect.DeepEqual(s.objectConfigs[obj.Type][obj.ID], obj.Config) {
			if s.logger != nil {
				s.logger.WithContext(ctx).WithField("object_type", obj.Type).WithField("object_id", obj.ID).
					Info("object config has changed")
			}
			s.objectConfigs[obj.Type][obj.ID] = obj.Config
			changed[obj.Type] = true
			matched[obj.Type][obj.ID] = true
		}
	}

	for objType, configs := range s.objectConfigs {
		for id := range configs {
			if !matched[objType][id] {
				delete(configs, id)
				changed[objType] = true
			}
		}
	}

	return changed
}

func (s *Supervisor) stopAllObjectManagers() {
	for i := len(s.objectManagerOrder) - 1; i >= 0; i-- {
		if om, ok := s.objectManagers[s.objectManagerOrder[i]]; ok {
			om.Stop()
		}
	}
	for name, om := range s.objectManagers {
		if !inOrder(s.objectManagerOrder, name) {
			om.Stop()
		}
	}
}

func inOrder(order []string, name string) bool {
	for _, n := range order {
		if n == name {
			return true
		}
	}
	return false
}

// CloudURLUpdater is implemented by anything the Supervisor must repoint
// at a new control-plane base URL when the cloud pushes an unfrozen
// cloud.api_url (bridge.CloudClient and HTTPHandshaker both satisfy it).
type CloudURLUpdater interface {
	UpdateBaseURL(baseURL string)
}

func (s *Supervisor) updateCloudURL() {
	url := s.cfg.Snapshot().Cloud().APIURL
	if s.cloudClient != nil {
		s.cloudClient.UpdateBaseURL(url)
	}
	if hu, ok := s.handshaker.(CloudURLUpdater); ok {
		hu.UpdateBaseURL(url)
	}
}

// treeMatchesOnlyExisting reports whether, for every section/key present
// in patch, base carries the identical value. A port of
// _recursive_dict_match_only_existing collapsed to two levels, matching
// agentconfig.Tree's flat section->key shape (the original's dicts can
// nest arbitrarily; this config format never does).
func treeMatchesOnlyExisting(patch map[string]map[string]interface{}, base map[string]map[string]interface{}) bool {
	for section, kv := range patch {
		baseKV, ok := base[section]
		if !ok {
			return false
		}
		for key, v := range kv {
			if !reflect.DeepEqual(v, baseKV[key]) {
				return false
			}
		}
	}
	return true
}
