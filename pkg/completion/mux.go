package completion

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

var _ Service = (*Route)(nil)

// Mux routes requests to services registered under model names.
type Mux struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{services: make(map[string]Service)}
}

// Handle registers svc under name. Registering a name twice is an error.
func (m *Mux) Handle(name string, svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[name]; ok {
		return fmt.Errorf("completion: service already registered for %s", name)
	}
	m.services[name] = svc
	return nil
}

// Get returns the service registered under name.
func (m *Mux) Get(name string) (Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[name]
	if !ok || svc == nil {
		return nil, fmt.Errorf("completion: service not found for %s", name)
	}
	return svc, nil
}

// Names returns the registered names in sorted order.
func (m *Mux) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Route returns a Service bound to name. Lookup happens per call, so a
// route can be created before the service is registered.
func (m *Mux) Route(name string) *Route {
	return &Route{mux: m, name: name}
}

// Route is a Service that forwards to a named entry of a Mux.
type Route struct {
	mux  *Mux
	name string
}

func (r *Route) Stream(ctx context.Context, req Request) (Stream, error) {
	svc, err := r.mux.Get(r.name)
	if err != nil {
		return nil, err
	}
	return svc.Stream(ctx, req)
}

func (r *Route) Complete(ctx context.Context, req Request) (string, error) {
	svc, err := r.mux.Get(r.name)
	if err != nil {
		return "", err
	}
	return svc.Complete(ctx, req)
}
