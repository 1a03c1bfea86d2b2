// main.go - drives simulated app visitors against a running nighthub server
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"nighthub/internal/storage"
	"nighthub/internal/tracker"
	"nighthub/internal/tracking"
)

// SimConfig holds the simulation parameters.
type SimConfig struct {
	BaseURL     string
	Visitors    int
	Duration    time.Duration
	Think       time.Duration
	Heartbeat   time.Duration
	ConsentRate float64
	BeaconRate  float64
	Timeout     time.Duration
	Verbose     bool
}

var userAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

var paths = []string{
	"/", "/", "/search", "/favorites", "/profile",
	"/event/event-01", "/event/event-02", "/event/event-03?tab=lineup", "/event/event-05",
	"/club/club-fabrik", "/dj/dj-amelie",
}

var referrers = []string{"", "https://www.instagram.com/", "https://www.google.com/", "https://ra.co/"}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the nighthub server")
	visitors := flag.Int("c", 10, "Number of concurrent simulated visitors")
	duration := flag.Duration("d", 30*time.Second, "Duration of the simulation")
	think := flag.Duration("think", 2*time.Second, "Average time a visitor stays on a screen")
	heartbeat := flag.Duration("heartbeat", 5*time.Second, "Heartbeat interval of each open tab")
	consentRate := flag.Float64("consent", 0.8, "Share of visitors who accept tracking")
	beaconRate := flag.Float64("beacon", 0.3, "Share of tabs that close abruptly and flush with a beacon")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := &SimConfig{
		BaseURL:     *baseURL,
		Visitors:    *visitors,
		Duration:    *duration,
		Think:       *think,
		Heartbeat:   *heartbeat,
		ConsentRate: *consentRate,
		BeaconRate:  *beaconRate,
		Timeout:     *timeout,
		Verbose:     *verbose,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("\n=== nighthub visitor simulation ===")
	fmt.Printf("  URL (-url):          %s\n", cfg.BaseURL)
	fmt.Printf("  Visitors (-c):       %d\n", cfg.Visitors)
	fmt.Printf("  Duration (-d):       %v\n", cfg.Duration)
	fmt.Printf("  Think time (-think): %v\n", cfg.Think)
	fmt.Printf("  Consent (-consent):  %.0f%%\n", cfg.ConsentRate*100)
	fmt.Printf("  Beacon (-beacon):    %.0f%%\n", cfg.BeaconRate*100)
	fmt.Println("===================================")

	stats := newSimStats()
	runCtx, runCancel := context.WithTimeout(ctx, cfg.Duration)
	defer runCancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Visitors; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			visitor(runCtx, cfg, stats, logger.With(slog.Int("visitor", id)))
		}(i)
	}
	wg.Wait()

	stats.print(os.Stdout)
}

// visitor plays one browser profile: it opens tabs, navigates between
// screens and closes them, until ctx is done.
func visitor(ctx context.Context, cfg *SimConfig, stats *simStats, logger *slog.Logger) {
	ua := userAgents[rand.IntN(len(userAgents))]
	remote := tracker.NewRemoteSink(cfg.BaseURL, cfg.Timeout, ua)
	dispatcher := tracker.NewDispatcher(&measuredSink{next: remote, stats: stats}, logger)
	sink := &switchSink{live: dispatcher}

	profile := tracker.NewProfile(storage.NewCookieJar(), storage.NewMemoryStore())
	if rand.Float64() < cfg.ConsentRate {
		if err := profile.Consent.Grant(); err != nil {
			logger.Warn("Failed to grant consent", slog.Any("error", err))
		}
	}

	tr := tracker.New(profile, sink,
		tracker.WithLogger(logger),
		tracker.WithEnvironment(tracker.Environment{
			UserAgent: ua,
			Language:  []string{"es-ES", "en-GB", "fr-FR"}[rand.IntN(3)],
			Timezone:  "Europe/Madrid",
			Referrer:  referrers[rand.IntN(len(referrers))],
		}))

	for ctx.Err() == nil {
		if rand.Float64() < 0.4 {
			tr.SetUser(fmt.Sprintf("sim-user-%03d", rand.IntN(50)))
		}

		tab := tracker.NewTab(tr, tracker.WithHeartbeatInterval(cfg.Heartbeat))
		for steps := 1 + rand.IntN(5); steps > 0 && ctx.Err() == nil; steps-- {
			tab.Navigate(ctx, paths[rand.IntN(len(paths))])
			stats.navigation()
			sleep(ctx, jitter(cfg.Think))
		}

		if rand.Float64() < cfg.BeaconRate {
			// Abrupt close: the closing writes are collected and sent as one beacon.
			batch := sink.capture()
			tab.Close(context.WithoutCancel(ctx))
			sink.release()
			if batch.Len() > 0 {
				start := time.Now()
				err := remote.SendBeacon(context.WithoutCancel(ctx), batch)
				stats.record("beacon", time.Since(start), err)
			}
		} else {
			tab.Close(context.WithoutCancel(ctx))
		}
		sleep(ctx, jitter(cfg.Think))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := dispatcher.Close(closeCtx); err != nil {
		logger.Warn("Dispatcher did not drain", slog.Any("error", err))
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// switchSink forwards writes to the live sink, or into a batch while a tab
// is being torn down.
type switchSink struct {
	live tracker.Sink

	mu    sync.Mutex
	batch *tracker.Batch
}

func (s *switchSink) capture() *tracker.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = &tracker.Batch{}
	return s.batch
}

func (s *switchSink) release() {
	s.mu.Lock()
	s.batch = nil
	s.mu.Unlock()
}

// route sends a write to the open batch, holding the lock so heartbeat and
// teardown writes cannot interleave inside it, or to the live sink.
func (s *switchSink) route(write func(tracker.Sink) error) error {
	s.mu.Lock()
	if s.batch != nil {
		defer s.mu.Unlock()
		return write(s.batch)
	}
	s.mu.Unlock()
	return write(s.live)
}

func (s *switchSink) UpsertDevice(ctx context.Context, in tracking.DeviceUpsert) error {
	return s.route(func(t tracker.Sink) error { return t.UpsertDevice(ctx, in) })
}

func (s *switchSink) StartSession(ctx context.Context, in tracking.SessionStart) error {
	return s.route(func(t tracker.Sink) error { return t.StartSession(ctx, in) })
}

func (s *switchSink) TouchSession(ctx context.Context, in tracking.SessionTouch) error {
	return s.route(func(t tracker.Sink) error { return t.TouchSession(ctx, in) })
}

func (s *switchSink) StartView(ctx context.Context, in tracking.ViewStart) error {
	return s.route(func(t tracker.Sink) error { return t.StartView(ctx, in) })
}

func (s *switchSink) EndView(ctx context.Context, in tracking.ViewEnd) error {
	return s.route(func(t tracker.Sink) error { return t.EndView(ctx, in) })
}

// measuredSink times every write it forwards.
type measuredSink struct {
	next  tracker.Sink
	stats *simStats
}

func (m *measuredSink) measure(op string, write func() error) error {
	start := time.Now()
	err := write()
	m.stats.record(op, time.Since(start), err)
	return err
}

func (m *measuredSink) UpsertDevice(ctx context.Context, in tracking.DeviceUpsert) error {
	return m.measure(tracker.OpDevice, func() error { return m.next.UpsertDevice(ctx, in) })
}

func (m *measuredSink) StartSession(ctx context.Context, in tracking.SessionStart) error {
	return m.measure(tracker.OpSessionStart, func() error { return m.next.StartSession(ctx, in) })
}

func (m *measuredSink) TouchSession(ctx context.Context, in tracking.SessionTouch) error {
	return m.measure(tracker.OpSessionTouch, func() error { return m.next.TouchSession(ctx, in) })
}

func (m *measuredSink) StartView(ctx context.Context, in tracking.ViewStart) error {
	return m.measure(tracker.OpViewStart, func() error { return m.next.StartView(ctx, in) })
}

func (m *measuredSink) EndView(ctx context.Context, in tracking.ViewEnd) error {
	return m.measure(tracker.OpViewEnd, func() error { return m.next.EndView(ctx, in) })
}

// simStats aggregates write latencies per operation.
type simStats struct {
	mu          sync.Mutex
	start       time.Time
	navigations int64
	ops         map[string]*opStats
}

type opStats struct {
	count     int64
	failed    int64
	latencies []time.Duration
}

func newSimStats() *simStats {
	return &simStats{start: time.Now(), ops: map[string]*opStats{}}
}

func (s *simStats) navigation() {
	s.mu.Lock()
	s.navigations++
	s.mu.Unlock()
}

func (s *simStats) record(op string, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.ops[op]
	if !ok {
		st = &opStats{}
		s.ops[op] = st
	}
	st.count++
	if err != nil {
		st.failed++
	}
	st.latencies = append(st.latencies, d)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func (s *simStats) print(out *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.start)
	fmt.Fprintf(out, "\n=== Results (%v) ===\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Navigations: %d\n\n", s.navigations)

	names := make([]string, 0, len(s.ops))
	for name := range s.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OP\tCOUNT\tFAILED\tP50\tP95\tMAX\tRATE/S")
	var total, failed int64
	for _, name := range names {
		st := s.ops[name]
		sorted := append([]time.Duration(nil), st.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%v\t%v\t%.1f\n",
			name, st.count, st.failed,
			percentile(sorted, 0.50).Round(time.Microsecond),
			percentile(sorted, 0.95).Round(time.Microsecond),
			percentile(sorted, 1).Round(time.Microsecond),
			float64(st.count)/elapsed.Seconds())
		total += st.count
		failed += st.failed
	}
	w.Flush()

	if total > 0 {
		fmt.Fprintf(out, "\nTotal writes: %d, failed: %d (%.1f%%)\n", total, failed, float64(failed)/float64(total)*100)
	}
}
