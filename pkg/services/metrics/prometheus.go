package metrics

import (
	"net/http"

	"github.com/lrmpt/lrmpt/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewPrometheusService creates a service exposing the default Prometheus
// registry (trie core metrics included) at /metrics.
func NewPrometheusService(cfg config.BasicService, log *zap.Logger) *Service {
	if log == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return NewService("Prometheus", newServers(cfg, mux), cfg, log)
}

func newServers(cfg config.BasicService, h http.Handler) []*http.Server {
	srvs := make([]*http.Server, len(cfg.Addresses))
	for i, addr := range cfg.Addresses {
		srvs[i] = &http.Server{
			Addr:    addr,
			Handler: h,
		}
	}
	return srvs
}
