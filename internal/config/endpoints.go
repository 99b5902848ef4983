package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoEndpoints is returned when an endpoints file decodes to zero
// entries: a fatal configuration error at startup, per the core's error
// taxonomy (empty endpoint list is never valid).
var ErrNoEndpoints = errors.New("config: endpoints file declares no endpoints")

// EndpointSpec is one entry of the endpoints YAML mapping.
type EndpointSpec struct {
	Name          string  `yaml:"name"`
	Group         string  `yaml:"group"`
	TransferGroup string  `yaml:"transfer_group"`
	Globus        string  `yaml:"globus"`
	LaunchTime    float64 `yaml:"launch_time"`
}

// LoadEndpoints decodes path directly with yaml.v3 (not funneled through
// viper, mirroring the original Python's own direct yaml.safe_load) into an
// endpoint_id -> spec mapping.
func LoadEndpoints(path string) (map[string]EndpointSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read endpoints file %s: %w", path, err)
	}

	var endpoints map[string]EndpointSpec
	if err := yaml.Unmarshal(raw, &endpoints); err != nil {
		return nil, fmt.Errorf("config: parse endpoints file %s: %w", path, err)
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoints, path)
	}

	return endpoints, nil
}
