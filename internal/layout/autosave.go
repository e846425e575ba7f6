package layout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Saver persists every dirty layout it owns and reports how many it wrote.
type Saver interface {
	SaveAll(ctx context.Context) (int, error)
}

// Autosaver runs a Saver on a cron schedule.
type Autosaver struct {
	cron  *cron.Cron
	saver Saver
	ctx   context.Context
	log   *slog.Logger

	mu      sync.Mutex
	runs    int
	lastErr error
}

// NewAutosaver returns a stopped autosaver. Schedules use the six-field
// (seconds-first) cron syntax, or descriptors such as "@every 30s".
func NewAutosaver(ctx context.Context, s Saver, log *slog.Logger) *Autosaver {
	if log == nil {
		log = slog.Default()
	}
	return &Autosaver{
		cron:  cron.New(cron.WithSeconds()),
		saver: s,
		ctx:   ctx,
		log:   log.With("component", "autosave"),
	}
}

// Start registers spec and starts the scheduler.
func (a *Autosaver) Start(spec string) error {
	if _, err := a.cron.AddFunc(spec, a.RunNow); err != nil {
		return fmt.Errorf("register autosave %q: %w", spec, err)
	}
	a.cron.Start()
	a.log.Info("autosave started", "schedule", spec)
	return nil
}

// Stop stops the scheduler and waits for a running save to finish.
func (a *Autosaver) Stop() {
	<-a.cron.Stop().Done()
	a.log.Info("autosave stopped")
}

// RunNow performs one save pass immediately.
func (a *Autosaver) RunNow() {
	start := time.Now()
	n, err := a.saver.SaveAll(a.ctx)

	a.mu.Lock()
	a.runs++
	a.lastErr = err
	a.mu.Unlock()

	if err != nil {
		a.log.Error("autosave failed", "saved", n, "error", err)
		return
	}
	if n > 0 {
		a.log.Debug("autosave", "saved", n, "took", time.Since(start))
	}
}

// Runs returns the number of completed passes and the last pass error.
func (a *Autosaver) Runs() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs, a.lastErr
}
