package metrics

import (
	"net/http"
	"net/http/pprof"

	"github.com/lrmpt/lrmpt/pkg/config"
	"go.uber.org/zap"
)

// NewPprofService creates a service exposing net/http/pprof profiles under
// /debug/pprof/. It's handy for looking at reader and writer contention
// during the stress run.
func NewPprofService(cfg config.BasicService, log *zap.Logger) *Service {
	if log == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	for name, h := range map[string]http.HandlerFunc{
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	} {
		mux.HandleFunc("/debug/pprof/"+name, h)
	}
	return NewService("Pprof", newServers(cfg, mux), cfg, log)
}
