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

// Command exchanged runs the file exchange server: it accepts mutual-TLS
// connections, derives a session key per connection, and dispatches
// upload/download/list commands under it (§4).
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sage-x-project/sage/admission"
	"github.com/sage-x-project/sage/atrest"
	"github.com/sage-x-project/sage/internal/config"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
	"github.com/sage-x-project/sage/pkg/storage"
	"github.com/sage-x-project/sage/pkg/storage/memory"
	"github.com/sage-x-project/sage/pkg/storage/mongo"
	"github.com/sage-x-project/sage/server"
)

func main() {
	os.Exit(run())
}

// run wires the server and blocks until SIGINT/SIGTERM, returning the
// process exit code (§6: 0 graceful, 1 startup failure, 2 runtime fatal).
func run() int {
	port := flag.Int("p", 1512, "listen port (1-65535)")
	flag.Parse()

	loaded, err := config.Load(os.Getenv("EXCHANGE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "exchanged: invalid configuration: %v\n", err)
		return 1
	}
	cfg := *loaded
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "p" {
			cfg.ListenPort = *port
		}
	})
	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "exchanged: invalid configuration: %v\n", err)
		return 1
	}

	log := logger.NewDefaultLogger()

	cipher, err := atrest.NewCipher()
	if err != nil {
		log.Error("failed to initialize at-rest cipher", logger.Error(err))
		return 1
	}
	defer cipher.Zero()

	files, err := atrest.NewStore(cfg.StorageRoot)
	if err != nil {
		log.Error("failed to open object store directory", logger.Error(err))
		return 1
	}

	store, err := openObjectStore(cfg)
	if err != nil {
		log.Error("failed to connect to metadata store", logger.Error(err))
		return 1
	}
	defer store.Close(context.Background())

	bans, err := admission.LoadBanList(cfg.BannedFilePath)
	if err != nil {
		log.Error("failed to load ban list", logger.Error(err))
		return 1
	}

	tlsConfig, err := loadServerTLSConfig(cfg)
	if err != nil {
		log.Error("failed to load TLS material", logger.Error(err))
		return 1
	}

	srv := server.New(
		&cfg,
		log,
		store,
		cipher,
		files,
		admission.NewConnectionLimiter(),
		admission.NewRateLimiter(),
		bans,
		adminFingerprints(),
	)

	listener, err := tls.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort), tlsConfig)
	if err != nil {
		log.Error("failed to bind listener", logger.Error(err))
		return 1
	}

	metricsSrv := startMetricsServer(cfg, log)
	defer shutdownMetricsServer(metricsSrv, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	log.Info("exchanged listening", logger.Int("port", cfg.ListenPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
		listener.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown timed out with connections still open", logger.Error(err))
		}
		if err := srv.PersistBans(); err != nil {
			log.Error("failed to persist ban list on shutdown", logger.Error(err))
			return 2
		}
		return 0

	case err := <-serveErr:
		log.Error("listener stopped unexpectedly", logger.Error(err))
		return 2
	}
}

// openObjectStore picks the Mongo-backed store when EXCHANGE_MONGO_URI is
// set, otherwise an in-memory store suitable for a single-process
// deployment or test run (§2 domain stack, §4 storage adapter).
func openObjectStore(cfg config.Config) (storage.ObjectStore, error) {
	uri := os.Getenv("EXCHANGE_MONGO_URI")
	if uri == "" {
		return memory.NewStore(), nil
	}
	db := os.Getenv("EXCHANGE_MONGO_DB")
	if db == "" {
		db = "exchange"
	}
	return mongo.Connect(context.Background(), mongo.Config{
		URI:        uri,
		Database:   db,
		Collection: "objects",
	})
}

// loadServerTLSConfig builds the mutual-TLS listener configuration: a
// server certificate and a client CA pool that makes client-certificate
// presentation mandatory (§3 "mutual TLS 1.2+", §6 environment layout).
func loadServerTLSConfig(cfg config.Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.TLSCAPath)
	if err != nil {
		return nil, fmt.Errorf("read client CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates parsed from %s", cfg.TLSCAPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// adminFingerprints reads the allow-listed administrator certificate
// fingerprints from EXCHANGE_ADMIN_FINGERPRINTS (comma-separated lowercase
// hex), the wire-command administrator interface's access list (§4
// supplemented administrator interface).
func adminFingerprints() []string {
	raw := os.Getenv("EXCHANGE_ADMIN_FINGERPRINTS")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// startMetricsServer exposes Prometheus metrics on cfg.MetricsAddr,
// following the teacher's promhttp-handler-on-its-own-mux convention.
func startMetricsServer(cfg config.Config, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", logger.Error(err))
		}
	}()
	return srv
}

func shutdownMetricsServer(srv *http.Server, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown error", logger.Error(err))
	}
}
