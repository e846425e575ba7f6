package indicator

// Config is the persisted form of an instance: identity and inputs only.
// Lines are always recomputed after a restore.
type Config struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Inputs Inputs `json:"inputs,omitempty"`
}

// Configs captures the current instance list for persistence.
func (e *Engine) Configs() []Config {
	out := make([]Config, 0, len(e.instances))
	for _, inst := range e.instances {
		out = append(out, Config{ID: inst.ID, Kind: inst.Kind, Inputs: inst.Inputs.Clone()})
	}
	return out
}

// Snapshot returns a deep copy of the instances, safe to hand to other goroutines.
func (e *Engine) Snapshot() []Instance {
	out := make([]Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		cp := *inst
		cp.Inputs = inst.Inputs.Clone()
		cp.Lines = append([]Line(nil), inst.Lines...)
		out = append(out, cp)
	}
	return out
}
