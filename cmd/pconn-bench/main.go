// Command pconn-bench is a small CLI that exercises internal/handler
// against a real (or the bundled demo) HTTP origin: it fires N concurrent
// requests at a configured maxConnectionsPerServer and prints pool
// statistics on exit.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thushan/pconn/app"
	"github.com/thushan/pconn/internal/config"
	"github.com/thushan/pconn/internal/env"
	"github.com/thushan/pconn/internal/handler"
	"github.com/thushan/pconn/internal/logger"
	"github.com/thushan/pconn/internal/transport"
	"github.com/thushan/pconn/internal/version"
	"github.com/thushan/pconn/pkg/container"
	"github.com/thushan/pconn/pkg/eventbus"
	"github.com/thushan/pconn/pkg/format"
	"github.com/thushan/pconn/pkg/nerdstats"
	"github.com/thushan/pconn/pkg/profiler"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)

	root := &cobra.Command{
		Use:   "pconn-bench",
		Short: "Drives the pooled connection handler against a test origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, startTime, vlog)
		},
	}

	root.Flags().Int("requests", 20, "total requests to fire")
	root.Flags().Int("max-conns", 4, "maxConnectionsPerServer for the pool under test")
	root.Flags().String("target", "", "origin URL to hit; empty starts and uses the bundled demo origin")
	root.Flags().Bool("profile", false, "expose pprof on localhost:19841")
	root.Flags().Bool("version", false, "print version and exit")

	if err := root.Execute(); err != nil {
		logger.Fatal("pconn-bench failed", "error", err)
	}
}

func run(cmd *cobra.Command, startTime time.Time, vlog *log.Logger) error {
	showVersion, _ := cmd.Flags().GetBool("version")
	version.PrintVersionInfo(showVersion, vlog)
	if showVersion {
		return nil
	}

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	if profile, _ := cmd.Flags().GetBool("profile"); profile {
		profiler.InitialiseProfiler()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	target, _ := cmd.Flags().GetString("target")
	var origin *app.Application
	if target == "" {
		cfg := config.DefaultConfig()
		if container.IsContainerised() {
			cfg.Pool.MaxConnectionsPerServer = max(2, cfg.Pool.MaxConnectionsPerServer/2)
		}
		origin, err = app.New(cfg, logInstance)
		if err != nil {
			return fmt.Errorf("creating demo origin: %w", err)
		}
		if err := origin.Start(ctx); err != nil {
			return fmt.Errorf("starting demo origin: %w", err)
		}
		defer func() { _ = origin.Stop(context.Background()) }()
		target = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		time.Sleep(100 * time.Millisecond) // let the listener come up
	}

	bus := eventbus.New[transport.PoolEvent]()
	defer bus.Shutdown()

	events, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()
	tally := newEventTally()
	go tally.run(ctx, events)

	maxConns, _ := cmd.Flags().GetInt("max-conns")
	h := handler.New(handler.Options{
		MaxConnectionsPerServer:     maxConns,
		PooledConnectionLifetime:    10 * time.Minute,
		PooledConnectionIdleTimeout: 90 * time.Second,
		ConnectTimeout:              5 * time.Second,
		ReaperFloor:                 time.Second,
		Decompress:                  true,
		Stats:                       transport.NewEventBusStats(bus),
	}, &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second})
	defer h.Close()

	requests, _ := cmd.Flags().GetInt("requests")
	styledLogger.Info("firing requests", "count", requests, "max_conns", maxConns, "target", target)

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < requests; i++ {
		group.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, target+"/echo", nil)
			if err != nil {
				return err
			}
			resp, err := h.Do(gctx, req)
			if err != nil {
				styledLogger.Warn("request failed", "error", err)
				return nil
			}
			_ = resp.Body.Close()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		styledLogger.Error("request fan-out error", "error", err)
	}

	time.Sleep(50 * time.Millisecond) // let the event bus's async publish workers drain
	reportPoolEvents(styledLogger, tally)
	reportProcessStats(styledLogger, startTime)
	styledLogger.Info("pconn-bench finished")
	return nil
}

// eventTally tallies pool lifecycle events off the event bus by kind, so
// the shutdown report can show what the pool actually did - dials, reuses,
// disposals, waiter queueing - rather than just aggregate request counts.
type eventTally struct {
	mu     sync.Mutex
	counts map[string]int
}

func newEventTally() *eventTally {
	return &eventTally{counts: make(map[string]int)}
}

func (t *eventTally) run(ctx context.Context, events <-chan transport.PoolEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.mu.Lock()
			t.counts[ev.Kind.String()]++
			t.mu.Unlock()
		}
	}
}

func (t *eventTally) snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

func reportPoolEvents(styledLogger logger.StyledLogger, tally *eventTally) {
	counts := tally.snapshot()
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fields := make([]any, 0, len(kinds)*2)
	for _, kind := range kinds {
		fields = append(fields, kind, counts[kind])
	}
	styledLogger.Info("pool event counts", fields...)
}

func reportProcessStats(styledLogger logger.StyledLogger, startTime time.Time) {
	runtime.GC()
	stats := nerdstats.Snapshot(startTime)

	styledLogger.Info("process memory stats",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"total_alloc", format.Bytes(stats.TotalAlloc),
		"memory_pressure", stats.GetMemoryPressure(),
	)
	styledLogger.Info("goroutine stats",
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
	)
	styledLogger.Info("runtime stats",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
	)
}

func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetEnvOrDefault("PCONN_LOG_LEVEL", "info"),
		FileOutput: env.GetEnvBoolOrDefault("PCONN_FILE_OUTPUT", false),
		LogDir:     env.GetEnvOrDefault("PCONN_LOG_DIR", "./logs"),
		MaxSize:    env.GetEnvIntOrDefault("PCONN_MAX_SIZE", 100),
		MaxBackups: env.GetEnvIntOrDefault("PCONN_MAX_BACKUPS", 5),
		MaxAge:     env.GetEnvIntOrDefault("PCONN_MAX_AGE", 30),
		Theme:      env.GetEnvOrDefault("PCONN_THEME", "default"),
		PrettyLogs: true,
	}
}
