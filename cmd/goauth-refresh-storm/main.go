// Command goauth-refresh-storm fires bursts of concurrent refresh triggers at
// one session manager and checks that each burst costs the backend exactly
// one refresh call.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/backend/backendtest"
	"github.com/MrEthical07/goAuthClient/metrics/export/prometheus"
	"github.com/MrEthical07/goAuthClient/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	demoEmail    = "storm@example.com"
	demoPassword = "storm-password-123"
)

func main() {
	var (
		rounds      = flag.Int("rounds", 50, "number of refresh bursts")
		callers     = flag.Int("callers", 64, "concurrent triggers per burst")
		hold        = flag.Duration("hold", 20*time.Millisecond, "how long the backend holds each refresh open")
		trigger     = flag.String("trigger", "refresh", "trigger kind: refresh or rejection")
		storeDriver = flag.String("store", "memory", "token store: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		dumpMetrics = flag.Bool("metrics", false, "print manager metrics in Prometheus format")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *rounds <= 0 || *callers <= 0 {
		fmt.Fprintln(os.Stderr, "rounds and callers must be > 0")
		os.Exit(2)
	}
	if *trigger != "refresh" && *trigger != "rejection" {
		fmt.Fprintln(os.Stderr, "trigger must be refresh or rejection")
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := goAuthClient.NewLogger(os.Stderr, goAuthClient.LoggingConfig{Level: level, Format: "text"})

	ctx := context.Background()
	tokens, cleanup, err := openStore(*storeDriver, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	srv, err := backendtest.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()
	if _, err := srv.AddUser(demoEmail, demoPassword, "user"); err != nil {
		fmt.Fprintf(os.Stderr, "seed user: %v\n", err)
		os.Exit(1)
	}

	m, err := newManager(srv.URL, tokens, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "manager: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if _, err := m.Hydrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hydrate: %v\n", err)
		os.Exit(1)
	}
	if _, err := m.Login(ctx, goAuthClient.Credentials{Identifier: demoEmail, Secret: demoPassword}); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("running %d bursts of %d %s triggers\n", *rounds, *callers, *trigger)
	stats, failures, err := runStorm(ctx, m, srv, *rounds, *callers, *hold, *trigger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storm: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("trigger", stats)
	calls := srv.RefreshCalls()
	fmt.Printf("backend refresh calls=%d expected=%d failures=%d phase=%s\n", calls, *rounds, failures, m.Snapshot().Phase)

	if *dumpMetrics {
		fmt.Print(prometheus.NewExporter(m).Render())
	}
	if calls != int64(*rounds) || failures > 0 {
		os.Exit(1)
	}
}

func newManager(baseURL string, tokens store.Store, logger *slog.Logger) (*goAuthClient.Manager, error) {
	cfg := goAuthClient.DefaultConfig()
	cfg.Backend.BaseURL = baseURL
	cfg.Storage.Driver = "memory"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := backend.NewClient(cfg.Backend, backend.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return goAuthClient.New().
		WithConfig(cfg).
		WithBackend(client).
		WithStore(tokens).
		WithLogger(logger).
		Build()
}

func openStore(driver, addr string) (store.Store, func(), error) {
	switch driver {
	case "memory":
		return store.NewMemory(store.DefaultKeys()), func() {}, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown store %q", driver)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	var stopMini func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		stopMini = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	cleanup := func() {
		_ = client.Close()
		if stopMini != nil {
			stopMini()
		}
	}
	return store.NewRedis(client, "goauth-storm", store.DefaultKeys(), time.Hour), cleanup, nil
}

func runStorm(ctx context.Context, m *goAuthClient.Manager, srv *backendtest.Server, rounds, callers int, hold time.Duration, trigger string) ([]time.Duration, int, error) {
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, rounds*callers)
		failures  int
	)

	for round := 0; round < rounds; round++ {
		before := srv.RefreshCalls()
		stale := m.Snapshot().AccessToken
		if trigger == "rejection" {
			srv.RevokeAccessTokens()
		}
		release := srv.HoldRefresh()

		var wg, ready sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			ready.Add(1)
			go func() {
				defer wg.Done()
				ready.Done()
				t0 := time.Now()
				var err error
				if trigger == "rejection" {
					err = m.HandleRejection(ctx, stale)
				} else {
					err = m.Refresh(ctx)
				}
				d := time.Since(t0)

				mu.Lock()
				latencies = append(latencies, d)
				if err != nil {
					failures++
				}
				mu.Unlock()
			}()
		}

		if err := waitForCall(srv, before+1, 5*time.Second); err != nil {
			release()
			wg.Wait()
			return nil, failures, fmt.Errorf("round %d: %w", round, err)
		}
		// Every caller must join the held refresh before it completes.
		ready.Wait()
		time.Sleep(hold)
		release()
		wg.Wait()
	}
	return latencies, failures, nil
}

func waitForCall(srv *backendtest.Server, want int64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for srv.RefreshCalls() < want {
		if time.Now().After(deadline) {
			return fmt.Errorf("backend refresh not reached within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

type phaseStats struct {
	ops int
	p50 time.Duration
	p95 time.Duration
	p99 time.Duration
	max time.Duration
}

func computeStats(samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		ops: len(samples),
		p50: percentile(samples, 50),
		p95: percentile(samples, 95),
		p99: percentile(samples, 99),
		max: samples[len(samples)-1],
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, samples []time.Duration) {
	s := computeStats(samples)
	fmt.Printf("%s: ops=%d p50=%s p95=%s p99=%s max=%s\n",
		name,
		s.ops,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
		s.max.Round(time.Microsecond),
	)
}
