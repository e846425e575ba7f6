package indicator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chartdesk/internal/model"
)

// State is the lifecycle state of an instance.
type State string

const (
	StateComputing State = "computing"
	StateReady     State = "ready"
	StateError     State = "error"
)

// Instance is one indicator added to a workspace.
type Instance struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Inputs Inputs `json:"inputs"`
	State  State  `json:"state"`
	Error  string `json:"error,omitempty"`
	Lines  []Line `json:"lines"`

	dirty bool
}

// ComputeHook observes every compute run.
type ComputeHook func(kind string, took time.Duration, err error)

// idSpace namespaces the deterministic instance ids.
var idSpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("chartdesk/indicator"))

// Engine keeps the indicator instances of one workspace computed.
// Designed for single-goroutine usage, no locks needed.
type Engine struct {
	reg       *Registry
	log       *slog.Logger
	hook      ComputeHook
	instances []*Instance
	seq       uint64
}

// NewEngine creates an engine over reg. A nil logger uses slog.Default.
func NewEngine(reg *Registry, log *slog.Logger) *Engine {
	if reg == nil {
		reg = Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{reg: reg, log: log}
}

// SetHook installs a compute observer (metrics).
func (e *Engine) SetHook(h ComputeHook) { e.hook = h }

// Registry returns the registry the engine resolves kinds against.
func (e *Engine) Registry() *Registry { return e.reg }

// Add registers a new instance of kind. Unknown kinds fail with ErrUnknownKind
// and leave the engine untouched.
func (e *Engine) Add(kind string, in Inputs) (*Instance, error) {
	return e.add("", kind, in)
}

func (e *Engine) add(id, kind string, in Inputs) (*Instance, error) {
	norm, err := e.reg.Normalize(kind, in)
	if err != nil {
		return nil, err
	}
	if id == "" || e.index(id) >= 0 {
		id = e.nextID(kind)
	}
	inst := &Instance{ID: id, Kind: kind, Inputs: norm, State: StateComputing, dirty: true}
	e.instances = append(e.instances, inst)
	return inst, nil
}

func (e *Engine) nextID(kind string) string {
	for {
		e.seq++
		id := uuid.NewSHA1(idSpace, []byte(fmt.Sprintf("%s#%d", kind, e.seq))).String()
		if e.index(id) < 0 {
			return id
		}
	}
}

// Remove destroys an instance.
func (e *Engine) Remove(id string) error {
	i := e.index(id)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	e.instances = append(e.instances[:i:i], e.instances[i+1:]...)
	return nil
}

// SetInputs edits some inputs of an instance. Unchanged inputs keep the
// current lines; any change schedules a recompute.
func (e *Engine) SetInputs(id string, in Inputs) error {
	i := e.index(id)
	if i < 0 {
		return fmt.Errorf("set inputs %s: %w", id, ErrNotFound)
	}
	inst := e.instances[i]
	merged := inst.Inputs.Clone()
	for k, v := range in {
		merged[k] = v
	}
	norm, err := e.reg.Normalize(inst.Kind, merged)
	if err != nil {
		return err
	}
	if norm.Equal(inst.Inputs) {
		return nil
	}
	inst.Inputs = norm
	inst.State, inst.dirty = StateComputing, true
	return nil
}

// Invalidate marks every instance for recompute (series replaced).
func (e *Engine) Invalidate() {
	for _, inst := range e.instances {
		inst.State, inst.dirty = StateComputing, true
	}
}

// Pending returns the number of instances awaiting recompute.
func (e *Engine) Pending() int {
	n := 0
	for _, inst := range e.instances {
		if inst.dirty {
			n++
		}
	}
	return n
}

// Flush recomputes every pending instance over bars and returns how many ran.
// A failing instance moves to StateError without affecting the others.
func (e *Engine) Flush(bars []model.Bar) int {
	ran := 0
	for _, inst := range e.instances {
		if !inst.dirty {
			continue
		}
		start := time.Now()
		lines, err := e.reg.Compute(inst.Kind, bars, inst.Inputs)
		if e.hook != nil {
			e.hook(inst.Kind, time.Since(start), err)
		}
		inst.dirty = false
		ran++
		if err != nil {
			e.log.Warn("indicator compute failed", "id", inst.ID, "kind", inst.Kind, "error", err)
			inst.State, inst.Error, inst.Lines = StateError, err.Error(), nil
			continue
		}
		inst.State, inst.Error, inst.Lines = StateReady, "", lines
	}
	return ran
}

// Instances returns the instances in insertion order.
func (e *Engine) Instances() []*Instance {
	out := make([]*Instance, len(e.instances))
	copy(out, e.instances)
	return out
}

// Get returns the instance with id.
func (e *Engine) Get(id string) (*Instance, bool) {
	if i := e.index(id); i >= 0 {
		return e.instances[i], true
	}
	return nil, false
}

func (e *Engine) index(id string) int {
	for i, inst := range e.instances {
		if inst.ID == id {
			return i
		}
	}
	return -1
}
