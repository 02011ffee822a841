/*
Package metrics contains HTTP services exposing runtime metrics of the tool.
*/
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/lrmpt/lrmpt/pkg/config"
	"go.uber.org/zap"
)

// Service serves metrics.
type Service struct {
	http        []*http.Server
	config      config.BasicService
	log         *zap.Logger
	serviceType string
	started     atomic.Bool
}

// NewService configures logger and returns a new service instance.
func NewService(name string, httpServers []*http.Server, cfg config.BasicService, log *zap.Logger) *Service {
	return &Service{
		http:        httpServers,
		config:      cfg,
		serviceType: name,
		log:         log.With(zap.String("service", name)),
	}
}

// Start binds all configured addresses and serves requests in the
// background. Nothing is left listening if any of the addresses can't be
// bound.
func (ms *Service) Start() error {
	if !ms.config.Enabled {
		ms.log.Info("service hasn't started since it's disabled")
		return nil
	}
	if !ms.started.CompareAndSwap(false, true) {
		ms.log.Info("service already started")
		return nil
	}
	lns := make([]net.Listener, 0, len(ms.http))
	for _, srv := range ms.http {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range lns {
				_ = l.Close()
			}
			ms.started.Store(false)
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}
		lns = append(lns, ln)
	}
	for i, srv := range ms.http {
		srv.Addr = lns[i].Addr().String()
		ms.log.Info("starting service", zap.String("endpoint", srv.Addr))
		go func(s *http.Server, ln net.Listener) {
			err := s.Serve(ln)
			if !errors.Is(err, http.ErrServerClosed) {
				ms.log.Error("service stopped", zap.String("endpoint", s.Addr), zap.Error(err))
			}
		}(srv, lns[i])
	}
	return nil
}

// Addresses returns the actual addresses of the running service.
func (ms *Service) Addresses() []string {
	res := make([]string, 0, len(ms.http))
	for _, srv := range ms.http {
		res = append(res, srv.Addr)
	}
	return res
}

// ShutDown stops the service.
func (ms *Service) ShutDown() {
	if !ms.config.Enabled {
		return
	}
	if !ms.started.CompareAndSwap(true, false) {
		return
	}
	for _, srv := range ms.http {
		ms.log.Info("shutting down service", zap.String("endpoint", srv.Addr))
		err := srv.Shutdown(context.Background())
		if err != nil {
			ms.log.Error("can't shut service down", zap.String("endpoint", srv.Addr), zap.Error(err))
		}
	}
}
