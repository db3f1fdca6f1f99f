// Package worker moves profile file I/O off the control thread and wires
// background consumers of change events to the dispatcher.
package worker

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/cavestory-tools/cse/internal/dispatcher"
	"github.com/cavestory-tools/cse/internal/history"
	"github.com/cavestory-tools/cse/internal/manager"
	"github.com/cavestory-tools/cse/internal/profile"
)

// ErrBusy is returned when a load or save is already running.
var ErrBusy = errors.New("file operation already in progress")

// Op names a file operation.
type Op int

const (
	OpLoad Op = iota
	OpSave
)

func (o Op) String() string {
	if o == OpSave {
		return "save"
	}
	return "load"
}

// Result reports a finished file operation. Profile is set for loads that
// succeeded.
type Result struct {
	Op       Op
	Path     string
	Profile  profile.Profile
	Err      error
	Duration time.Duration
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Options profile.Options
	History *history.Manager // optional
	Logger  dispatcher.Logger
}

// Manager runs one file operation at a time on its own goroutine.
type Manager struct {
	deps    Dependencies
	busy    atomic.Bool
	results chan Result
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	return &Manager{
		deps:    deps,
		results: make(chan Result, 1),
	}
}

// Busy reports whether a load or save is running.
func (m *Manager) Busy() bool {
	return m.busy.Load()
}

// Results delivers each finished operation. Read it from the control thread
// and pass loads to Apply. A new operation is refused with ErrBusy until the
// previous result has been read.
func (m *Manager) Results() <-chan Result {
	return m.results
}

// Load opens path in the background.
func (m *Manager) Load(path string) error {
	return m.start(OpLoad, path, func() (profile.Profile, error) {
		return profile.Open(path, m.deps.Options)
	})
}

// Save writes p to path in the background. The caller must not modify p
// until the result arrives.
func (m *Manager) Save(p profile.Profile, path string) error {
	return m.start(OpSave, path, func() (profile.Profile, error) {
		return nil, p.Save(path)
	})
}

func (m *Manager) start(op Op, path string, run func() (profile.Profile, error)) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if len(m.results) > 0 {
		m.busy.Store(false)
		return ErrBusy
	}
	go func() {
		start := time.Now()
		p, err := run()
		res := Result{Op: op, Path: path, Profile: p, Err: err, Duration: time.Since(start)}
		if err != nil {
			m.deps.Logger.Error("file operation failed", "op", op.String(), "path", path, "error", err)
		} else {
			m.deps.Logger.Debug("file operation done", "op", op.String(), "path", path, "duration", res.Duration)
		}
		m.results <- res
		m.busy.Store(false)
	}()
	return nil
}

// UnregisterHandlers removes the consumers added by RegisterHandlers.
func (m *Manager) UnregisterHandlers(d *dispatcher.Dispatcher) {
	if d.HasListener("history") {
		d.Unsubscribe("history")
	}
}

// Apply binds a loaded profile to mgr. Results of saves and failed loads
// are returned as their error.
func Apply(res Result, mgr *manager.Manager) error {
	if res.Err != nil {
		return res.Err
	}
	if res.Op == OpLoad {
		mgr.Bind(res.Profile)
	}
	return nil
}

// RegisterHandlers subscribes background consumers of change events. The
// journal records each batch under the profile and slot mgr reports when
// the batch is delivered.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher, mgr *manager.Manager) {
	if m.deps.History == nil {
		return
	}
	d.Subscribe("history", m.deps.History.Listener(func() (string, int) {
		p := mgr.Active()
		if p == nil {
			return "", 0
		}
		return p.Path(), p.Section()
	}), dispatcher.Logged())
}
