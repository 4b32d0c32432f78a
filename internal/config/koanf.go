// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/skywatch/config.yaml",
	"/etc/skywatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// JETSTREAM_HOSTS -> jetstream.hosts, DATABASE_PATH -> database.path, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envAliases maps flat operator-facing variable names onto config paths.
// Variables not listed here fall through to the generic section rule in
// envTransformFunc.
var envAliases = map[string]string{
	"DATABASE_PATH":     "database.path",
	"DATABASE_URL":      "database.path",
	"JETSTREAM_HOSTS":   "jetstream.hosts",
	"PLC_DIRECTORY_URL": "resolver.plc_directory_url",
	"PUBLIC_API_URL":    "appview.public_api_url",
	"ADMIN_DID":         "admin.did",
	"LOG_LEVEL":         "logging.level",
	"LOG_FORMAT":        "logging.format",
	"LOG_CALLER":        "logging.caller",
	"HTTP_HOST":         "server.host",
	"HTTP_PORT":         "server.port",
	"CORS_ORIGINS":      "server.cors_origins",
}

// knownSections are the top-level config keys recognized by the generic
// SECTION_FIELD_NAME -> section.field_name environment mapping.
var knownSections = map[string]bool{
	"database":  true,
	"jetstream": true,
	"resolver":  true,
	"appview":   true,
	"server":    true,
	"logging":   true,
	"admin":     true,
}

// envTransformFunc maps environment variable names to koanf config paths.
//
//	JETSTREAM_TEMP_MAX_CONCURRENT -> jetstream.temp_max_concurrent
//	RESOLVER_TIMEOUT              -> resolver.timeout
//
// Unknown variables map to "" and are dropped, so unrelated process
// environment does not leak into the config tree.
func envTransformFunc(key string) string {
	if path, ok := envAliases[key]; ok {
		return path
	}

	lower := strings.ToLower(key)
	section, rest, found := strings.Cut(lower, "_")
	if !found || !knownSections[section] {
		return ""
	}
	return section + "." + rest
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive as
// plain strings from the environment.
var sliceConfigPaths = []string{
	"jetstream.hosts",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
