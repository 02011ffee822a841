package db

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lrmpt/lrmpt/cli/options"
	"github.com/lrmpt/lrmpt/pkg/config"
	"github.com/lrmpt/lrmpt/pkg/lrtrie"
	"github.com/lrmpt/lrmpt/pkg/services/metrics"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func newStressCommand() cli.Command {
	return cli.Command{
		Name:      "stress",
		Usage:     "Run concurrent readers against a single writer",
		UsageText: "lrmpt db stress [--config-file file] [--readers N] [--writes N] [--batch N] [--metrics-addr addr]",
		Description: `Publishes the given number of random batches while readers keep
   querying random keys. Metrics are served at /metrics of --metrics-addr
   (or the configured Prometheus service) while the command runs.`,
		Action: stress,
		Flags: append([]cli.Flag{
			options.Timeout,
			cli.IntFlag{
				Name:  "readers, r",
				Value: 4,
				Usage: "number of concurrent readers",
			},
			cli.IntFlag{
				Name:  "writes, w",
				Value: 1000,
				Usage: "number of published versions",
			},
			cli.IntFlag{
				Name:  "batch, b",
				Value: 10,
				Usage: "number of pairs inserted by a single version",
			},
			cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "address to serve Prometheus metrics at (overrides configuration)",
			},
		}, options.Config...),
	}
}

func stressKey(i int) []byte {
	return []byte("stress-" + strconv.Itoa(i))
}

func stress(ctx *cli.Context) error {
	var (
		readers = ctx.Int("readers")
		writes  = ctx.Int("writes")
		batch   = ctx.Int("batch")
	)
	if readers < 0 || writes <= 0 || batch <= 0 {
		return cli.NewExitError("readers must be non-negative, writes and batch must be positive", 1)
	}
	tr, cfg, log, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	promCfg := cfg.ApplicationConfiguration.Prometheus
	if addr := ctx.String("metrics-addr"); addr != "" {
		promCfg = config.BasicService{Enabled: true, Addresses: []string{addr}}
	}
	prometheus := metrics.NewPrometheusService(promCfg, log)
	if err := prometheus.Start(); err != nil {
		return cli.NewExitError(err, 1)
	}
	defer prometheus.ShutDown()
	pprof := metrics.NewPprofService(cfg.ApplicationConfiguration.Pprof, log)
	if err := pprof.Start(); err != nil {
		return cli.NewExitError(err, 1)
	}
	defer pprof.ShutDown()

	var (
		keySpace = writes*batch/2 + 1
		reads    atomic.Int64
		failed   atomic.Bool
		done     = make(chan struct{})
		wg       sync.WaitGroup
		r        = tr.Reader()
	)
	defer r.Close()
	for i := 0; i < readers; i++ {
		h := r.Clone()
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			defer h.Close()
			rnd := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, _, err := h.Get(stressKey(rnd.Intn(keySpace))); err != nil {
					log.Error("read failed", zap.Error(err))
					failed.Store(true)
					return
				}
				reads.Add(1)
			}
		}(int64(i))
	}

	start := time.Now()
	rnd := rand.New(rand.NewSource(start.UnixNano()))
	err = func() error {
		for i := 0; i < writes; i++ {
			kvs := make([]lrtrie.KeyValue, batch)
			for j := range kvs {
				kvs[j] = lrtrie.KeyValue{
					Key:   stressKey(rnd.Intn(keySpace)),
					Value: []byte(strconv.Itoa(i)),
				}
			}
			if err := publishBatch(ctx, tr, kvs); err != nil {
				return fmt.Errorf("version %d: %w", i, err)
			}
		}
		return nil
	}()
	elapsed := time.Since(start)
	close(done)
	wg.Wait()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if failed.Load() {
		return cli.NewExitError("some reads failed", 1)
	}

	h, err := r.RootHash()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprintf(ctx.App.Writer, "versions: %d\nreads: %d\nelapsed: %s\nroot: %s\n",
		writes, reads.Load(), elapsed, h.StringBE())
	return nil
}

func publishBatch(ctx *cli.Context, tr *lrtrie.Trie, kvs []lrtrie.KeyValue) error {
	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	w, err := tr.Write(gctx)
	if err != nil {
		return err
	}
	if err := w.Extend(kvs); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Publish(gctx)
}
