package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultYAML renders the built-in defaults as a starter config file.
func DefaultYAML() ([]byte, error) {
	doc := map[string]any{
		"log": map[string]any{
			"level":  "info",
			"format": "auto",
		},
		"state": map[string]any{
			"dir":         "data/state",
			"history_cap": 10,
		},
		"workflow": map[string]any{
			"default_type": "standard",
			"timeout":      "45m",
		},
		"records": map[string]any{
			"base_url": "",
			"api_key":  "",
			"table":    "videos",
			"timeout":  "30s",
		},
		"publish": map[string]any{
			"youtube":   true,
			"wordpress": true,
			"instagram": true,
		},
		"server": map[string]any{
			"addr":            ":8080",
			"allowed_origins": []string{"*"},
		},
		"scheduler": map[string]any{
			"enabled": false,
			"cron":    "@every 30m",
		},
	}
	return yaml.Marshal(doc)
}

// WriteDefault writes the starter config to path, refusing to clobber
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
