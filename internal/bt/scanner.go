// Package bt discovers watches advertising over Bluetooth LE.
package bt

import (
	"cmp"
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/ttwatch/internal/events"
	"github.com/lowaak/ttwatch/internal/safego"
)

// Adapter is the part of *bluetooth.Adapter the scanner uses.
type Adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

var _ Adapter = (*bluetooth.Adapter)(nil)

// ErrScanning is returned by Start while a scan is running.
var ErrScanning = errors.New("bt: scan already running")

// Watch is an advertising watch.
type Watch struct {
	Address  string
	Name     string
	RSSI     int16
	LastSeen time.Time
}

// watchNames are the advertised name prefixes of supported watches.
var watchNames = []string{"TomTom", "Runner", "Spark", "Adventurer", "Golfer", "Multi-Sport"}

// IsWatchName reports whether an advertised name belongs to a watch.
func IsWatchName(name string) bool {
	for _, prefix := range watchNames {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Scanner tracks watches seen while scanning. Watches not seen for the
// scan timeout are forgotten.
type Scanner struct {
	adapter Adapter
	logger  *log.Logger
	config  Config

	mu       sync.RWMutex
	watches  map[string]*Watch
	scanning bool
	cancel   context.CancelFunc
	group    *safego.Group

	updates *events.Feed[[]Watch]
	found   *events.Feed[Watch]
}

// Config holds the scanner options.
type Config struct {
	Timeout  time.Duration
	Interval time.Duration
	// Filter selects the advertised names to track; nil tracks everything.
	Filter func(name string) bool
}

func defaultConfig() Config {
	return Config{
		Timeout:  10 * time.Second,
		Interval: time.Second,
		Filter:   IsWatchName,
	}
}

// Option configures a Scanner.
type Option func(*Config)

// WithTimeout sets how long a watch is kept after it was last seen.
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

// WithInterval sets the period of list updates and stale watch removal.
func WithInterval(d time.Duration) Option { return func(c *Config) { c.Interval = d } }

// WithFilter replaces the advertised name filter.
func WithFilter(f func(name string) bool) Option { return func(c *Config) { c.Filter = f } }

// NewScanner returns a scanner using adapter, normally
// bluetooth.DefaultAdapter.
func NewScanner(adapter Adapter, logger *log.Logger, opts ...Option) *Scanner {
	if adapter == nil {
		panic("Scanner: adapter cannot be nil")
	}
	if logger == nil {
		panic("Scanner: logger cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 || cfg.Interval <= 0 {
		panic("Scanner: timeout and interval must be > 0")
	}
	return &Scanner{
		adapter: adapter,
		logger:  logger,
		config:  cfg,
		watches: make(map[string]*Watch),
		group:   safego.New("Scanner", logger),
		updates: events.NewFeed[[]Watch](true),
		found:   events.NewFeed[Watch](false),
	}
}

// Enable powers up the adapter.
func (s *Scanner) Enable() error { return s.adapter.Enable() }

// Start scans until ctx is done or Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return ErrScanning
	}
	s.scanning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Printf("Scanner: starting scan")

	s.group.Go("scan", func() {
		err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			if ctx.Err() != nil {
				return
			}
			s.observe(r.Address.String(), r.LocalName(), r.RSSI, time.Now())
		})
		if err != nil {
			s.logger.Printf("Scanner: scan error: %v", err)
		}
	})
	s.group.Go("tick", func() { s.tick(ctx) })
	s.group.Go("stop", func() {
		<-ctx.Done()
		if err := s.adapter.StopScan(); err != nil {
			s.logger.Printf("Scanner: stop scan: %v", err)
		}
	})
	return nil
}

// Stop ends the scan and waits for its goroutines.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.scanning = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.group.Wait()
	s.logger.Printf("Scanner: stopped")
}

// IsScanning reports whether a scan is running.
func (s *Scanner) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

func (s *Scanner) tick(ctx context.Context) {
	t := time.NewTicker(s.config.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.prune(now)
			s.updates.Notify(s.Watches())
		}
	}
}

func (s *Scanner) observe(address, name string, rssi int16, now time.Time) {
	if s.config.Filter != nil && !s.config.Filter(name) {
		return
	}
	s.mu.Lock()
	w, ok := s.watches[address]
	if !ok {
		w = &Watch{Address: address}
		s.watches[address] = w
	}
	if name != "" {
		w.Name = name
	}
	w.RSSI = rssi
	w.LastSeen = now
	seen := *w
	s.mu.Unlock()

	if !ok {
		s.logger.Printf("Scanner: found %s (%s) [RSSI: %d]", name, address, rssi)
		s.found.Notify(seen)
	}
}

func (s *Scanner) prune(now time.Time) {
	s.mu.Lock()
	var removed []string
	for addr, w := range s.watches {
		if now.Sub(w.LastSeen) > s.config.Timeout {
			delete(s.watches, addr)
			removed = append(removed, addr)
		}
	}
	s.mu.Unlock()

	for _, addr := range removed {
		s.logger.Printf("Scanner: %s not seen for %v", addr, s.config.Timeout)
	}
}

// Watches returns the watches currently tracked, strongest signal first.
func (s *Scanner) Watches() []Watch {
	s.mu.RLock()
	out := make([]Watch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, *w)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Watch) int {
		if c := cmp.Compare(b.RSSI, a.RSSI); c != 0 {
			return c
		}
		return strings.Compare(a.Address, b.Address)
	})
	return out
}

// ListenWatches subscribes ch to the periodic watch list.
func (s *Scanner) ListenWatches(ch chan<- []Watch) func() { return s.updates.Listen(ch) }

// OnFound registers fn for every newly discovered watch.
func (s *Scanner) OnFound(fn func(Watch)) func() { return s.found.Subscribe(fn) }
