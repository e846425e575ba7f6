package indicator

import (
	"fmt"
)

// Reload replaces the instance list with cfgs. Instances whose id, kind and
// inputs are unchanged keep their computed lines; everything else is created
// fresh and left pending. Entries with an unknown kind or bad inputs are
// skipped and reported in dropped.
func (e *Engine) Reload(cfgs []Config) (preserved, created int, dropped []error) {
	old := make(map[string]*Instance, len(e.instances))
	for _, inst := range e.instances {
		old[inst.ID] = inst
	}

	e.instances = e.instances[:0:0]
	for _, cfg := range cfgs {
		norm, err := e.reg.Normalize(cfg.Kind, cfg.Inputs)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("indicator %s (%s): %w", cfg.ID, cfg.Kind, err))
			continue
		}
		if prev, ok := old[cfg.ID]; ok && prev.Kind == cfg.Kind && prev.Inputs.Equal(norm) && e.index(cfg.ID) < 0 {
			e.instances = append(e.instances, prev)
			preserved++
			continue
		}
		if _, err := e.add(cfg.ID, cfg.Kind, norm); err != nil {
			dropped = append(dropped, fmt.Errorf("indicator %s (%s): %w", cfg.ID, cfg.Kind, err))
			continue
		}
		created++
	}

	for _, err := range dropped {
		e.log.Warn("indicator dropped on reload", "error", err)
	}
	e.log.Debug("indicators reloaded", "configs", len(cfgs), "preserved", preserved, "created", created)
	return preserved, created, dropped
}

// ValidateConfigs checks a set of configs against the registry without
// touching any engine.
func ValidateConfigs(reg *Registry, cfgs []Config) error {
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if _, err := reg.Normalize(cfg.Kind, cfg.Inputs); err != nil {
			return err
		}
		if cfg.ID != "" {
			if seen[cfg.ID] {
				return fmt.Errorf("duplicate indicator id %q", cfg.ID)
			}
			seen[cfg.ID] = true
		}
	}
	return nil
}
