package app

import (
	"sync"
	"time"

	"github.com/nkovacs/hospital/internal/bus"
	"github.com/nkovacs/hospital/internal/replica"
)

// HealthCheckPolicy configures probing for every replica of a service.
// All durations are non-negative. A service without a policy performs no
// health checking: its replicas are treated as immediately healthy.
type HealthCheckPolicy struct {
	// Endpoint is the HTTP path probed on every listening port.
	Endpoint string
	// Interval is the pause between probe cycles.
	Interval time.Duration
	// BootGrace is how long failures are tolerated after a replica starts.
	BootGrace time.Duration
	// SicknessGrace is how long continued failure is tolerated after a
	// replica first turns sick.
	SicknessGrace time.Duration
}

// Service is a named deployable unit. It owns its replica set and the event
// bus its replica lifecycle is published on. A service outlives individual
// replicas.
type Service struct {
	Name   string
	Policy *HealthCheckPolicy

	events *bus.Bus

	mu       sync.Mutex
	replicas map[string]*replica.Handle
}

// NewService constructs a service with its own event bus. A nil policy means
// no health checking.
func NewService(name string, policy *HealthCheckPolicy) *Service {
	return &Service{
		Name:     name,
		Policy:   policy,
		events:   bus.New(),
		replicas: make(map[string]*replica.Handle),
	}
}

// Bus returns the service's replica event bus.
func (s *Service) Bus() *bus.Bus {
	return s.events
}

// AddReplica records a live replica handle. Owner API.
func (s *Service) AddReplica(h *replica.Handle) {
	s.mu.Lock()
	s.replicas[h.Name] = h
	s.mu.Unlock()
}

// RemoveReplica forgets a replica handle. Owner API, called after Removed has
// been observed by all subscribers.
func (s *Service) RemoveReplica(name string) {
	s.mu.Lock()
	delete(s.replicas, name)
	s.mu.Unlock()
}

// Replica returns the live handle with the given name, if any.
func (s *Service) Replica(name string) (*replica.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.replicas[name]
	return h, ok
}

// Replicas returns a snapshot of the live replica handles.
func (s *Service) Replicas() []*replica.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*replica.Handle, 0, len(s.replicas))
	for _, h := range s.replicas {
		out = append(out, h)
	}
	return out
}

// Application is a named set of services.
type Application struct {
	Name     string
	Services []*Service
}

// Service returns the named service, if the application defines it.
func (a *Application) Service(name string) (*Service, bool) {
	for _, svc := range a.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return nil, false
}
