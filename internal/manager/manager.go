// Package manager binds the active profile to name-based field and method
// access and publishes every change through the dispatcher.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cavestory-tools/cse/internal/dispatcher"
	"github.com/cavestory-tools/cse/internal/profile"
	"github.com/cavestory-tools/cse/pkg/core"
)

const instrumentationName = "github.com/cavestory-tools/cse/internal/manager"

// ErrNoProfile is returned by accessors while no profile is bound.
var ErrNoProfile = errors.New("no profile loaded")

// Manager mediates all reads and writes of the active profile. It is not
// safe for concurrent use; callers serialize access on one control thread.
type Manager struct {
	active profile.Profile
	events *dispatcher.Dispatcher
	logger dispatcher.Logger
	opts   profile.Options

	fieldsSet     metric.Int64Counter
	methodsCalled metric.Int64Counter
	methodsFailed metric.Int64Counter
}

// New creates a Manager with nothing bound. opts is used for profiles the
// manager creates or loads itself.
func New(events *dispatcher.Dispatcher, logger dispatcher.Logger, opts profile.Options) (*Manager, error) {
	m := &Manager{
		events: events,
		logger: logger,
		opts:   opts,
	}

	meter := otel.Meter(instrumentationName)

	var err error

	m.fieldsSet, err = meter.Int64Counter(
		"manager.fields.set",
		metric.WithDescription("Total successful field writes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fields counter: %w", err)
	}

	m.methodsCalled, err = meter.Int64Counter(
		"manager.methods.called",
		metric.WithDescription("Total successful method calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating methods counter: %w", err)
	}

	m.methodsFailed, err = meter.Int64Counter(
		"manager.methods.failed",
		metric.WithDescription("Total method calls rolled back after an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed methods counter: %w", err)
	}

	return m, nil
}

// Active returns the bound profile, or nil.
func (m *Manager) Active() profile.Profile {
	return m.active
}

// Bind swaps in p as the active profile and publishes a data replacement.
func (m *Manager) Bind(p profile.Profile) {
	var oldPath, newPath string
	if m.active != nil {
		oldPath = m.active.Path()
	}
	if p != nil {
		newPath = p.Path()
	}
	m.active = p
	m.logger.Info("profile bound", "path", newPath)
	m.events.Publish(core.DataReplace(oldPath, newPath))
	m.events.Flush()
}

// Create binds a fresh profile of the given variant.
func (m *Manager) Create(variant profile.Variant) error {
	p, err := profile.New(variant, m.opts)
	if err != nil {
		return err
	}
	m.Bind(p)
	return nil
}

// Load reads path and binds the result. The current profile stays bound if
// loading fails.
func (m *Manager) Load(path string) error {
	p, err := profile.Open(path, m.opts)
	if err != nil {
		m.logger.Error("failed to load profile", "path", path, "error", err)
		return err
	}
	m.Bind(p)
	return nil
}

// Save writes the active profile to path, or back to where it was loaded
// from when path is empty.
func (m *Manager) Save(path string) error {
	p, err := m.profile()
	if err != nil {
		return err
	}
	if path == "" {
		path = p.Path()
	}
	if path == "" {
		return fmt.Errorf("profile has never been saved, a path is required")
	}
	return p.Save(path)
}

// Modified reports whether the active profile has unsaved changes.
func (m *Manager) Modified() bool {
	return m.active != nil && m.active.State() == profile.Modified
}

// HasField reports whether the active profile registers name.
func (m *Manager) HasField(name string) bool {
	_, err := m.field(name)
	return err == nil
}

// FieldType returns the value type of name.
func (m *Manager) FieldType(name string) (profile.ValueType, error) {
	f, err := m.field(name)
	if err != nil {
		return profile.TypeNone, err
	}
	return f.Type, nil
}

// FieldAcceptsValue reports whether value may be written to name[index].
func (m *Manager) FieldAcceptsValue(name string, index int, value any) (bool, error) {
	f, err := m.field(name)
	if err != nil {
		return false, err
	}
	return f.Accepts(index, value), nil
}

// GetField reads name[index] from the active profile.
func (m *Manager) GetField(name string, index int) (any, error) {
	p, err := m.profile()
	if err != nil {
		return nil, err
	}
	return p.GetField(name, index)
}

// SetField writes name[index] and publishes the change immediately.
func (m *Manager) SetField(name string, index int, value any) error {
	p, err := m.profile()
	if err != nil {
		return err
	}
	old, err := p.GetField(name, index)
	if err != nil {
		return err
	}
	if err := p.SetField(name, index, value); err != nil {
		return err
	}
	// read back the stored form so listeners see the field's native type
	stored, _ := p.GetField(name, index)

	m.fieldsSet.Add(context.Background(), 1, metric.WithAttributes(attribute.String("field", name)))
	m.events.Publish(core.FieldChange(name, index, old, stored))
	m.events.Flush()
	return nil
}

// HasMethod reports whether the active profile registers name.
func (m *Manager) HasMethod(name string) bool {
	_, err := m.method(name)
	return err == nil
}

// MethodArgCount returns the number of arguments name takes.
func (m *Manager) MethodArgCount(name string) (int, error) {
	md, err := m.method(name)
	if err != nil {
		return 0, err
	}
	return len(md.Args), nil
}

// MethodArgTypes returns the argument types of name in order.
func (m *Manager) MethodArgTypes(name string) ([]profile.ValueType, error) {
	md, err := m.method(name)
	if err != nil {
		return nil, err
	}
	return append([]profile.ValueType(nil), md.Args...), nil
}

// MethodReturnType returns the return type of name, TypeNone if it returns
// nothing.
func (m *Manager) MethodReturnType(name string) (profile.ValueType, error) {
	md, err := m.method(name)
	if err != nil {
		return profile.TypeNone, err
	}
	return md.Returns, nil
}

// CallMethod runs name with args. Events the body records are published as
// one batch after it returns. If the body fails the profile is rolled back to
// its state before the call and nothing is published.
func (m *Manager) CallMethod(name string, args ...any) (any, error) {
	p, err := m.profile()
	if err != nil {
		return nil, err
	}

	attr := metric.WithAttributes(attribute.String("method", name))
	snap := p.Snapshot()
	rec := profile.NewRecorder()

	result, err := p.CallMethod(rec, name, args...)
	if err != nil {
		p.Restore(snap)
		m.methodsFailed.Add(context.Background(), 1, attr)
		m.logger.Error("method failed", "method", name, "args", args, "error", err)
		return nil, err
	}

	m.methodsCalled.Add(context.Background(), 1, attr)
	m.logger.Debug("method called", "method", name, "args", args, "events", rec.Len())
	m.events.Publish(rec.Events()...)
	m.events.Flush()
	return result, nil
}

// LogAttrs describes the active profile for log records.
func (m *Manager) LogAttrs() []slog.Attr {
	if m.active == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("profile", m.active.Path()),
		slog.String("variant", m.active.Variant().String()),
		slog.Int("slot", m.active.Section()),
	}
}

func (m *Manager) profile() (profile.Profile, error) {
	if m.active == nil {
		return nil, ErrNoProfile
	}
	return m.active, nil
}

func (m *Manager) field(name string) (*profile.Field, error) {
	p, err := m.profile()
	if err != nil {
		return nil, err
	}
	f, ok := p.Registry().Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", profile.ErrFieldNotFound, name)
	}
	return f, nil
}

func (m *Manager) method(name string) (*profile.Method, error) {
	p, err := m.profile()
	if err != nil {
		return nil, err
	}
	md, ok := p.Registry().Method(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", profile.ErrMethodNotFound, name)
	}
	return md, nil
}
