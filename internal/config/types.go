// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package config loads the server's listen address, storage paths, TLS
// material, and admission tuning from environment variables (prefix
// EXCHANGE_) with an optional YAML file layer underneath, following the
// teacher's load-then-validate two-step.
package config

import "time"

// Config is the full server configuration (§6 "Environment / filesystem
// layout").
type Config struct {
	ListenPort int `yaml:"listen_port" json:"listen_port"`

	StorageRoot    string `yaml:"storage_root" json:"storage_root"`
	BannedFilePath string `yaml:"banned_file_path" json:"banned_file_path"`

	TLSCertPath string `yaml:"tls_cert_path" json:"tls_cert_path"`
	TLSKeyPath  string `yaml:"tls_key_path" json:"tls_key_path"`
	TLSCAPath   string `yaml:"tls_ca_path" json:"tls_ca_path"`

	RateLimitWindow   time.Duration `yaml:"rate_limit_window" json:"rate_limit_window"`
	RateLimitCeiling  int           `yaml:"rate_limit_ceiling" json:"rate_limit_ceiling"`
	ConnectionCap     int           `yaml:"connection_cap" json:"connection_cap"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ApprovalInterval  time.Duration `yaml:"approval_interval" json:"approval_interval"`

	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LoggingConfig mirrors the teacher's own logging config shape.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns the configuration implied by §6's documented defaults:
// port 1512, 60s/100-command rate limit, a 10-connection cap, and the
// 300s idle timeout of §5.
func Default() Config {
	return Config{
		ListenPort:       1512,
		StorageRoot:      "./data/objects",
		BannedFilePath:   "./data/banned.dat",
		TLSCertPath:      "./tls/server.crt",
		TLSKeyPath:       "./tls/server.key",
		TLSCAPath:        "./tls/ca.crt",
		RateLimitWindow:  60 * time.Second,
		RateLimitCeiling: 100,
		ConnectionCap:    10,
		IdleTimeout:      300 * time.Second,
		ApprovalInterval: 5 * time.Second,
		MetricsAddr:      ":9090",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
