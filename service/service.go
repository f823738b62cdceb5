// Package service runs the auxiliary HTTP endpoints of a session: a healthz
// probe and the Prometheus metrics handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/wetest/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config selects the listen addresses. An empty address disables the server.
type Config struct {
	HealthzAddr string
	MetricsAddr string
	Log         log.Logger
}

// DefaultConfig listens on the default ports for both servers.
func DefaultConfig(lgr log.Logger) Config {
	return Config{
		HealthzAddr: net.JoinHostPort(HealthzHost, HealthzPort),
		MetricsAddr: net.JoinHostPort(MetricsHost, MetricsPort),
		Log:         lgr,
	}
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg       Config
	listeners map[string]net.Listener
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Service{
		Healthz:   NewHealthzServer(cfg.Log),
		Metrics:   NewMetricsServer(),
		cfg:       cfg,
		listeners: make(map[string]net.Listener),
	}
}

// Start binds the enabled servers and serves them in the background.
func (s *Service) Start(ctx context.Context) error {
	s.cfg.Log.Info("service starting")

	if s.cfg.HealthzAddr != "" {
		if err := s.serve("healthz", s.cfg.HealthzAddr, s.Healthz.Serve); err != nil {
			return err
		}
	}
	if s.cfg.MetricsAddr != "" {
		if err := s.serve("metrics", s.cfg.MetricsAddr, s.Metrics.Serve); err != nil {
			return err
		}
	}

	s.cfg.Log.Info("service started")
	return nil
}

func (s *Service) serve(name, addr string, serve func(net.Listener) error) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for %s on %s: %w", name, addr, err)
	}
	s.listeners[name] = l
	s.cfg.Log.Info("starting "+name+" server", "addr", l.Addr().String())
	go func() {
		if err := serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error running "+name+" server", "err", err)
			metrics.RecordErrorDetails(name+"_server", err)
		}
	}()
	return nil
}

// Addr returns the bound address of the named server ("healthz" or "metrics").
func (s *Service) Addr(name string) string {
	if l, ok := s.listeners[name]; ok {
		return l.Addr().String()
	}
	return ""
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.cfg.Log.Info("service shutting down")

	err := errors.Join(s.Healthz.Shutdown(ctx), s.Metrics.Shutdown(ctx))
	s.cfg.Log.Info("service stopped")
	return err
}
