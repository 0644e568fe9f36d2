package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStarted is returned by Register once the manager is running.
var ErrStarted = errors.New("system: manager already started")

// Manager owns the start and stop order of registered services.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	started  []Service
	running  bool
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds svc. Names must be unique and registration closes at Start.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("system: nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrStarted
	}
	name := svc.Name()
	if _, dup := m.names[name]; dup {
		return fmt.Errorf("system: service %q already registered", name)
	}
	m.names[name] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every service in order. If one fails, the ones already
// started are stopped and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			stopErr := stopAll(ctx, m.started)
			m.started = nil
			return errors.Join(fmt.Errorf("start %s: %w", svc.Name(), err), stopErr)
		}
		m.started = append(m.started, svc)
	}
	m.running = true
	return nil
}

// Stop stops started services in reverse order and joins their errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	err := stopAll(ctx, m.started)
	m.started = nil
	m.running = false
	return err
}

// Names lists registered services in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.services))
	for i, svc := range m.services {
		out[i] = svc.Name()
	}
	return out
}

func stopAll(ctx context.Context, started []Service) error {
	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", started[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Func adapts a pair of functions into a Service.
type Func struct {
	ServiceName string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
}

func (f Func) Name() string { return f.ServiceName }

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
