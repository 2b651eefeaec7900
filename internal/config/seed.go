package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the optional config.yaml layered under MEGOBARI_HOME: persona
// defaults and monitor topic/entity/resource seed data applied once at
// startup, on top of whatever the store already has. Env vars (and
// anything already rows in the store) always win over this file — it
// only fills gaps on a fresh database.
type SeedFile struct {
	Personas      []PersonaSeed      `yaml:"personas"`
	MonitorTopics []MonitorTopicSeed `yaml:"monitor_topics"`
}

// PersonaSeed mirrors store.Persona's user-settable fields.
type PersonaSeed struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	MCPServers   []string `yaml:"mcp_servers"`
	Skills       []string `yaml:"skills"`
	IsDefault    bool     `yaml:"is_default"`
}

// MonitorTopicSeed mirrors store.MonitorTopic plus its nested entities and
// resources, so one topic block in config.yaml can seed a whole watch tree.
type MonitorTopicSeed struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Entities    []MonitorEntitySeed `yaml:"entities"`
}

// MonitorEntitySeed mirrors store.MonitorEntity plus its resources.
type MonitorEntitySeed struct {
	Name        string                `yaml:"name"`
	URL         string                `yaml:"url"`
	EntityType  string                `yaml:"entity_type"`
	Description string                `yaml:"description"`
	Resources   []MonitorResourceSeed `yaml:"resources"`
}

// MonitorResourceSeed mirrors store.MonitorResource.
type MonitorResourceSeed struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	ResourceType string `yaml:"resource_type"`
}

// SeedFilePath returns the optional config.yaml path under HomeDir.
func (c *Config) SeedFilePath() string {
	return c.HomeDir + "/config.yaml"
}

// LoadSeedFile reads and parses path. A missing file is not an error — it
// returns (nil, nil), since config.yaml is entirely optional.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sf, nil
}
