// Package health tracks the status of the forwarder's components and serves it
// over the standard gRPC health protocol.
package health

import (
	"sync"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Status is the last known health of one component
type Status struct {
	LastCheck time.Time `json:"last_check" msgpack:"last_check"`
	Status    string    `json:"status" msgpack:"status"`
	Message   string    `json:"message" msgpack:"message"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Manager manages component health status in memory
type Manager struct {
	mu     sync.RWMutex
	health map[string]Status
	grpc   *grpchealth.Server
	now    func() time.Time
}

// NewManager creates a new health manager
func NewManager() *Manager {
	return &Manager{
		health: make(map[string]Status),
		grpc:   grpchealth.NewServer(),
		now:    time.Now,
	}
}

// Report records the outcome of an operation for a component
func (m *Manager) Report(component, message string, err error) {
	s := Status{
		LastCheck: m.now(),
		Status:    StatusHealthy,
		Message:   message,
	}
	if err != nil {
		s.Status = StatusUnhealthy
		s.Error = err.Error()
	}
	m.Update(component, s)
}

// Update replaces the health status for a component
func (m *Manager) Update(component string, s Status) {
	m.mu.Lock()
	m.health[component] = s
	overall := m.healthyLocked()
	m.mu.Unlock()

	m.grpc.SetServingStatus(component, servingStatus(s.Status == StatusHealthy))
	m.grpc.SetServingStatus("", servingStatus(overall))
}

// Get retrieves the health status for a specific component
func (m *Manager) Get(component string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.health[component]
	return s, ok
}

// All returns a copy of every component's status
func (m *Manager) All() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.health))
	for k, v := range m.health {
		result[k] = v
	}
	return result
}

// IsHealthy checks if a component reported healthy within maxAge
func (m *Manager) IsHealthy(component string, maxAge time.Duration) bool {
	s, ok := m.Get(component)
	if !ok {
		return false
	}
	if m.now().Sub(s.LastCheck) > maxAge {
		return false
	}
	return s.Status == StatusHealthy
}

// Healthy reports whether every known component is healthy
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthyLocked()
}

func (m *Manager) healthyLocked() bool {
	for _, s := range m.health {
		if s.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// GRPCServer returns the gRPC health service fed by this manager
func (m *Manager) GRPCServer() healthpb.HealthServer {
	return m.grpc
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
