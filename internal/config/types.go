// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config defines jrpcproxy's configuration schema and its layered
// load order: built-in defaults, then ~/.jrpcproxy/config.yaml, then CLI
// flags, which win over both.
package config

// Config is the full set of tunables for a jrpcproxy run.
type Config struct {
	// ListenPort is the TCP port the proxy server binds.
	ListenPort int `yaml:"listen_port"`

	// TargetURL is the upstream JSON-RPC server requests are forwarded to.
	// Empty means no target is configured yet; the engine replies -32603 /
	// 502 to every request until one is set.
	TargetURL string `yaml:"target_url"`

	// LogJSON selects JSON-formatted stderr logging instead of text.
	LogJSON bool `yaml:"log_json"`

	// MetricsAddr is the address the Prometheus /metrics endpoint binds.
	// Empty disables the metrics route entirely.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns the configuration used when no config file exists
// and no flags override it.
func DefaultConfig() Config {
	return Config{
		ListenPort:  8080,
		TargetURL:   "",
		LogJSON:     false,
		MetricsAddr: "",
	}
}
