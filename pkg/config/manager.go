package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveStrategyPath maps a bare name onto configs/<name>.json, the way the
// CLI has always accepted "--config btc_5m" as well as full paths.
func ResolveStrategyPath(path string) string {
	if !strings.ContainsAny(path, "/\\") {
		path = filepath.Join("configs", path)
	}
	if filepath.Ext(path) == "" {
		path += ".json"
	}
	return path
}

// LoadStrategyFile reads a strategy plan from JSON, normalizes and validates it
func LoadStrategyFile(path string) (DcaStrategyConfig, error) {
	path = ResolveStrategyPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return DcaStrategyConfig{}, fmt.Errorf("read strategy config %s: %w", path, err)
	}

	cfg := DcaStrategyConfig{Enabled: true}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DcaStrategyConfig{}, fmt.Errorf("parse strategy config %s: %w", path, err)
	}
	return Prepare(cfg)
}

// SaveStrategyFile writes cfg as indented JSON, creating parent directories
func SaveStrategyFile(cfg DcaStrategyConfig, path string) error {
	if _, err := Prepare(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode strategy config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
