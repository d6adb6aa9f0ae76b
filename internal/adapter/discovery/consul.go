package discovery

import (
	"fmt"
	"net"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type serviceAgent interface {
	ServiceRegister(service *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

type ConsulClient struct {
	agent  serviceAgent
	logger *zap.Logger
}

type ServiceConfig struct {
	Name string
	ID   string
	// Address is advertised to Consul; empty means the preferred outbound IP
	Address    string
	Port       int
	Tags       []string
	HealthPath string
}

func NewConsulClient(address string, logger *zap.Logger) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	logger.Info("connected to Consul", zap.String("address", address))
	return &ConsulClient{agent: client.Agent(), logger: logger}, nil
}

// getOutboundIP gets the preferred outbound IP of this machine
func getOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

func buildRegistration(cfg ServiceConfig) *api.AgentServiceRegistration {
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	return &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: cfg.Address,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s%s", net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port)), healthPath),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
}

// Register registers the service with an HTTP health check
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	if cfg.Address == "" {
		cfg.Address = getOutboundIP()
	}

	if err := c.agent.ServiceRegister(buildRegistration(cfg)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("registered service",
		zap.String("name", cfg.Name),
		zap.String("id", cfg.ID),
		zap.String("address", cfg.Address),
		zap.Int("port", cfg.Port),
	)
	return nil
}

func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.agent.ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info("deregistered service", zap.String("id", serviceID))
	return nil
}
