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
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AgenticMath/services/explain"
	"github.com/AleutianAI/AgenticMath/services/llm"
	"github.com/AleutianAI/AgenticMath/services/solver"
)

type AgenticMathConfig struct {
	// Server: listen addresses for the API and the embedded solver
	Server ServerConfig `yaml:"server"`

	// LLM: the OpenAI-compatible explanation backend
	LLM LLMConfig `yaml:"llm"`

	// Evaluator: the local expression evaluator
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Storage: where the settings database lives
	Storage StorageConfig `yaml:"storage"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	APIAddress    string `yaml:"api_address"`    // e.g. 127.0.0.1:8420
	SolverAddress string `yaml:"solver_address"` // e.g. 127.0.0.1:5000; empty disables
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type EvaluatorConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	SettingsPath string `yaml:"settings_path"` // badger directory
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // empty disables file logging
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() AgenticMathConfig {
	return AgenticMathConfig{
		Server: ServerConfig{
			APIAddress:    "127.0.0.1:8420",
			SolverAddress: "127.0.0.1:5000",
		},
		LLM: LLMConfig{
			BaseURL:     llm.DefaultBaseURL,
			Model:       llm.DefaultModel,
			MaxTokens:   explain.DefaultMaxTokens,
			Temperature: explain.DefaultTemperature,
		},
		Evaluator: EvaluatorConfig{
			Timeout: solver.DefaultEvalTimeout,
		},
		Storage: StorageConfig{
			SettingsPath: filepath.Join(baseDir(), "settings"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
			OTLPEndpoint:  "localhost:4317",
		},
	}
}

// baseDir is ~/.agenticmath, or a relative .agenticmath when the home
// directory is unknown.
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agenticmath"
	}
	return filepath.Join(home, ".agenticmath")
}
