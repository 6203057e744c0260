// Package discovery registers RPC service endpoints with Consul so callers
// can locate the broker queue a service consumes.
package discovery

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/consul/api"
)

// Registration describes one RPC service endpoint. The request queue the
// service consumes is published as service metadata.
type Registration struct {
	ServiceName  string
	ServiceID    string
	Address      string
	Port         int
	RequestQueue string
	Metadata     map[string]string
}

// Registry is a Consul-backed endpoint registry.
type Registry struct {
	client *api.Client
	logger *slog.Logger
}

// NewRegistry creates a Registry against the Consul agent at addr. An empty
// addr uses the Consul client defaults.
func NewRegistry(addr string, logger *slog.Logger) (*Registry, error) {
	cfg := api.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	return &Registry{client: client, logger: logger}, nil
}

// Register announces the service endpoint in Consul.
func (r *Registry) Register(reg Registration) error {
	meta := make(map[string]string, len(reg.Metadata)+1)
	for k, v := range reg.Metadata {
		meta[k] = v
	}
	meta["request_queue"] = reg.RequestQueue

	consulReg := &api.AgentServiceRegistration{
		ID:      reg.ServiceID,
		Name:    reg.ServiceName,
		Address: reg.Address,
		Port:    reg.Port,
		Meta:    meta,
	}
	if err := r.client.Agent().ServiceRegister(consulReg); err != nil {
		return fmt.Errorf("consul register: %w", err)
	}

	r.logger.Info("registered service", "service_id", reg.ServiceID, "service_name", reg.ServiceName, "request_queue", reg.RequestQueue)
	return nil
}

// Deregister removes the service endpoint from Consul.
func (r *Registry) Deregister(serviceID string) error {
	if err := r.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("consul deregister: %w", err)
	}

	r.logger.Info("deregistered service", "service_id", serviceID)
	return nil
}
