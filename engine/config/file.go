package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a configuration file into out, selecting the decoder by
// file extension: .yaml/.yml use YAML, everything else is treated as JSON.
//
// The target is typically a Default* config first, so file values layer over
// defaults:
//
//	cfg := config.DefaultGraphConfig("course-builder")
//	var fileCfg config.GraphConfig
//	if err := config.LoadFile(path, &fileCfg); err != nil {
//	    return err
//	}
//	cfg.Merge(&fileCfg)
func LoadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	}

	return nil
}
