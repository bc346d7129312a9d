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

package config

import (
	"os"
	"strconv"
	"time"
)

const envPrefix = "EXCHANGE_"

// ApplyEnv overlays environment variables (prefix EXCHANGE_) onto cfg,
// each variable overriding the corresponding file/default value only if
// set.
func ApplyEnv(cfg *Config) {
	if v, ok := lookupInt(envPrefix + "LISTEN_PORT"); ok {
		cfg.ListenPort = v
	}
	if v, ok := os.LookupEnv(envPrefix + "STORAGE_ROOT"); ok {
		cfg.StorageRoot = v
	}
	if v, ok := os.LookupEnv(envPrefix + "BANNED_FILE_PATH"); ok {
		cfg.BannedFilePath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "TLS_CERT_PATH"); ok {
		cfg.TLSCertPath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "TLS_KEY_PATH"); ok {
		cfg.TLSKeyPath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "TLS_CA_PATH"); ok {
		cfg.TLSCAPath = v
	}
	if v, ok := lookupDuration(envPrefix + "RATE_LIMIT_WINDOW"); ok {
		cfg.RateLimitWindow = v
	}
	if v, ok := lookupInt(envPrefix + "RATE_LIMIT_CEILING"); ok {
		cfg.RateLimitCeiling = v
	}
	if v, ok := lookupInt(envPrefix + "CONNECTION_CAP"); ok {
		cfg.ConnectionCap = v
	}
	if v, ok := lookupDuration(envPrefix + "IDLE_TIMEOUT"); ok {
		cfg.IdleTimeout = v
	}
	if v, ok := lookupDuration(envPrefix + "APPROVAL_INTERVAL"); ok {
		cfg.ApprovalInterval = v
	}
	if v, ok := os.LookupEnv(envPrefix + "METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_OUTPUT"); ok {
		cfg.Logging.Output = v
	}
}

func lookupInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupDuration(name string) (time.Duration, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
