package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFile представляет структуру YAML файла конфигурации
type ConfigFile struct {
	Endpoints       []EndpointConfig `yaml:"endpoints"`
	Projects        []ProjectConfig  `yaml:"projects"`
	Archive         *ArchiveConfig   `yaml:"archive,omitempty"`
	RefreshInterval time.Duration    `yaml:"refreshInterval,omitempty"`
}

// LoadFromYAML загружает полную конфигурацию из YAML файла
func LoadFromYAML(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Валидация: каждый endpoint должен иметь имя и URL
	for i, ep := range configFile.Endpoints {
		if ep.Name == "" {
			return nil, fmt.Errorf("endpoint at index %d has no name", i)
		}
		if ep.URL == "" {
			return nil, fmt.Errorf("endpoint %q has no URL", ep.Name)
		}
	}
	for i, p := range configFile.Projects {
		if p.Name == "" {
			return nil, fmt.Errorf("project at index %d has no name", i)
		}
	}

	return &configFile, nil
}
