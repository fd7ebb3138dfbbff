// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is ~/.agenticmath/config.yaml.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

// Load reads the config at path, creating it with defaults if it does
// not exist. Fields missing from the file keep their default values.
// An empty path means DefaultPath(). Notices go to notify, which may be
// nil.
func Load(path string, notify io.Writer) (AgenticMathConfig, error) {
	if path == "" {
		path = DefaultPath()
	}
	// create it if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if notify != nil {
			fmt.Fprintf(notify, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return AgenticMathConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AgenticMathConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AgenticMathConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
