package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML file format accepted by --config. Every field is
// optional; flags override the file where both are set.
type Config struct {
	// Engine selects the backend: fm, scripted, openai or anthropic.
	Engine string `yaml:"engine"`
	// Model names the remote model for the openai and anthropic engines.
	Model string `yaml:"model"`
	// Instructions seed every session created by the CLI.
	Instructions string `yaml:"instructions"`
	// Temperature and MaxTokens tune generation when set.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
	// Responses preloads the scripted engine, keyed by prompt.
	Responses map[string]string `yaml:"responses"`
}

// LoadConfig reads a YAML config file. An empty path yields a zero config
// so every command works without one.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
