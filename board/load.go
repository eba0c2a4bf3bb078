package board

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// LoadConfig parses a JSON board description, fills in defaults and
// validates the result
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, errors.Wrap(err, "parse board config")
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfigFile reads and parses a board description from path
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read board config")
	}
	config, err := LoadConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return config, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.Name == "" {
		config.Name = "custom"
	}

	for i := range config.Buses {
		bus := &config.Buses[i]
		if bus.Select != "" {
			continue
		}
		// A bus that names chip-select lines wants them driven
		bus.Select = SelectHardware
		if bus.CS != nil {
			bus.Select = SelectGPIO
			continue
		}
		for _, dev := range bus.Devices {
			if dev.CS != nil {
				bus.Select = SelectGPIO
				break
			}
		}
	}
}
