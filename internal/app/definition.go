package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML scalars like "1s" or "500ms" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type definitionHealthCheck struct {
	Endpoint      string   `yaml:"endpoint"`
	Interval      Duration `yaml:"interval"`
	BootGrace     Duration `yaml:"boot_grace"`
	SicknessGrace Duration `yaml:"sickness_grace"`
}

type definitionService struct {
	Name        string                 `yaml:"name"`
	HealthCheck *definitionHealthCheck `yaml:"healthcheck"`
}

type definitionFile struct {
	Application string              `yaml:"application"`
	Services    []definitionService `yaml:"services"`
}

// LoadDefinition reads and parses an application definition file.
func LoadDefinition(path string) (*Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses and validates an application definition document.
func ParseDefinition(data []byte) (*Application, error) {
	var def definitionFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	if strings.TrimSpace(def.Application) == "" {
		return nil, errors.New("application name is required")
	}
	if len(def.Services) == 0 {
		return nil, errors.New("at least one service is required")
	}

	application := &Application{Name: def.Application}
	seen := make(map[string]struct{}, len(def.Services))
	for _, svc := range def.Services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			return nil, errors.New("service name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate service %q", name)
		}
		seen[name] = struct{}{}

		policy, err := buildPolicy(name, svc.HealthCheck)
		if err != nil {
			return nil, err
		}
		application.Services = append(application.Services, NewService(name, policy))
	}

	return application, nil
}

func buildPolicy(service string, hc *definitionHealthCheck) (*HealthCheckPolicy, error) {
	if hc == nil {
		return nil, nil
	}

	endpoint := strings.TrimSpace(hc.Endpoint)
	if endpoint == "" {
		endpoint = "/health"
	}
	if !strings.HasPrefix(endpoint, "/") {
		return nil, fmt.Errorf("service %q: endpoint must start with /", service)
	}
	if hc.Interval <= 0 {
		return nil, fmt.Errorf("service %q: probe interval must be greater than zero", service)
	}
	if hc.BootGrace < 0 || hc.SicknessGrace < 0 {
		return nil, fmt.Errorf("service %q: grace durations must not be negative", service)
	}

	return &HealthCheckPolicy{
		Endpoint:      endpoint,
		Interval:      time.Duration(hc.Interval),
		BootGrace:     time.Duration(hc.BootGrace),
		SicknessGrace: time.Duration(hc.SicknessGrace),
	}, nil
}
