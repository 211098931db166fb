package network

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// Checker performs one reachability probe.
type Checker interface {
	Check(ctx context.Context) models.NetworkStatus
}

// EscalatingChecker runs three checks in order: a raw TCP dial to a known
// resolver, then an HTTPS GET against a primary host, then a secondary
// host. Both of the first two passing means stable; any single success
// means unstable; nothing reachable means disconnected.
type EscalatingChecker struct {
	DialAddr     string
	PrimaryURL   string
	SecondaryURL string
	Timeout      time.Duration
	client       *http.Client
	once         sync.Once
}

func NewEscalatingChecker(dialAddr, primaryURL, secondaryURL string, timeout time.Duration) *EscalatingChecker {
	return &EscalatingChecker{
		DialAddr:     dialAddr,
		PrimaryURL:   primaryURL,
		SecondaryURL: secondaryURL,
		Timeout:      timeout,
	}
}

func (c *EscalatingChecker) Check(ctx context.Context) models.NetworkStatus {
	c.once.Do(func() {
		c.client = &http.Client{Timeout: c.Timeout}
	})

	dialOK := c.dial(ctx)
	primaryOK := c.get(ctx, c.PrimaryURL)
	if dialOK && primaryOK {
		return models.NetworkStable
	}
	if dialOK || primaryOK || c.get(ctx, c.SecondaryURL) {
		return models.NetworkUnstable
	}
	return models.NetworkDisconnected
}

func (c *EscalatingChecker) dial(ctx context.Context) bool {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.DialAddr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *EscalatingChecker) get(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// StatusRecorder persists observed network state. The state store
// implements it.
type StatusRecorder interface {
	UpdateNetworkStatus(status models.NetworkStatus, consecutiveFailures int) error
}

// Monitor tracks network reachability in a background goroutine and exposes
// the latest status as an advisory hint. Drop and recovery callbacks fire
// once per transition, not per poll.
type Monitor struct {
	checker  Checker
	interval time.Duration
	log      logger.Logger

	mu                  sync.RWMutex
	status              models.NetworkStatus
	consecutiveFailures int
	recorder            StatusRecorder
	onDrop              []func(models.NetworkStatus)
	onRecover           []func()

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMonitor(checker Checker, interval time.Duration, log logger.Logger) *Monitor {
	return &Monitor{
		checker:  checker,
		interval: interval,
		log:      log,
		status:   models.NetworkStable,
		stopCh:   make(chan struct{}),
	}
}

func (m *Monitor) OnDrop(fn func(models.NetworkStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDrop = append(m.onDrop, fn)
}

func (m *Monitor) OnRecover(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecover = append(m.onRecover, fn)
}

// SetRecorder registers the persistence sink for every probe result.
func (m *Monitor) SetRecorder(r StatusRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = r
}

// CheckHealth performs an explicit probe and updates the shared status.
func (m *Monitor) CheckHealth(ctx context.Context) models.NetworkStatus {
	status := m.checker.Check(ctx)
	m.transition(status)
	return status
}

func (m *Monitor) Status() models.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) ConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveFailures
}

// WaitForReconnection blocks, polling at interval, until the status becomes
// stable or maxWait elapses. Returns false on timeout or cancellation.
func (m *Monitor) WaitForReconnection(ctx context.Context, maxWait, interval time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if m.CheckHealth(ctx) == models.NetworkStable {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Start runs the background polling loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.CheckHealth(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Monitor) transition(status models.NetworkStatus) {
	m.mu.Lock()
	prev := m.status
	m.status = status
	if status == models.NetworkStable {
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
	}
	failures := m.consecutiveFailures
	recorder := m.recorder
	var drops []func(models.NetworkStatus)
	var recovers []func()
	if prev == models.NetworkStable && status != models.NetworkStable {
		drops = append(drops, m.onDrop...)
	}
	if prev != models.NetworkStable && status == models.NetworkStable {
		recovers = append(recovers, m.onRecover...)
	}
	m.mu.Unlock()

	if recorder != nil {
		if err := recorder.UpdateNetworkStatus(status, failures); err != nil {
			m.log.Warn("Failed to persist network status",
				logger.Field{Key: "error", Value: err.Error()})
		}
	}

	for _, fn := range drops {
		m.log.Warn("Network dropped", logger.Field{Key: "status", Value: string(status)})
		fn(status)
	}
	for _, fn := range recovers {
		m.log.Info("Network recovered")
		fn()
	}
}
