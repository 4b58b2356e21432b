/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kentakayama/uptane-trust/internal/config"
	"github.com/kentakayama/uptane-trust/internal/domain/service"
	"github.com/kentakayama/uptane-trust/internal/infra/faultinject"
)

// Repositories are the stores the server publishes from.
type Repositories struct {
	Metadata service.MetadataRepository
	Targets  service.TargetFileRepository
	Reports  service.VerificationReportRepository
}

// Server wires the HTTP listener, the fault injector and request handling.
type Server struct {
	cfg      config.ServerConfig
	handler  *handler
	injector *faultinject.Injector
	http     *http.Server
	logger   logrus.FieldLogger
}

// New constructs a Server serving repos. gatherer backs /metrics; nil
// uses the default registry.
func New(cfg config.ServerConfig, repos Repositories, gatherer prometheus.Gatherer) (*Server, error) {
	var logger logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h, err := newHandler(repos, gatherer, logger)
	if err != nil {
		return nil, err
	}

	injector := faultinject.NewInjector(h, logger)
	if err := injector.Configure(cfg.Faults); err != nil {
		return nil, err
	}

	timeout := cfg.ReadHeaderTimeout.Std()
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           injector,
		ReadHeaderTimeout: timeout,
	}

	return &Server{
		cfg:      cfg,
		handler:  h,
		injector: injector,
		http:     httpSrv,
		logger:   logger,
	}, nil
}

// Handler returns the root handler, fault injection included.
func (s *Server) Handler() http.Handler {
	return s.injector
}

// Injector returns the fault injector so that policies can be changed at
// run time.
func (s *Server) Injector() *faultinject.Injector {
	return s.injector
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("Run repository server on %s.", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
