package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/internal/observability"
)

// Probe checks one backend.
type Probe func(ctx context.Context) error

// BufferSizer reports the number of writes waiting in the offline buffer.
type BufferSizer interface {
	Size() (int, error)
}

type check struct {
	name     string
	probe    Probe
	required bool
	timeout  time.Duration
}

// Monitor polls backends and tells the buffer processor whether the primary store is
// reachable. Listeners registered with OnReconnect run when it comes back.
type Monitor struct {
	checks []check
	buffer BufferSizer

	status      Status
	online      bool
	mu          sync.RWMutex
	interval    time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	reconnected []func()
	logger      *zap.Logger
}

func New(buf BufferSizer, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		buffer:   buf,
		interval: interval,
		stopCh:   make(chan struct{}),
		online:   true,
		logger:   logger,
	}
}

// Require adds a backend the service cannot write without.
func (m *Monitor) Require(name string, probe Probe, timeout time.Duration) *Monitor {
	m.checks = append(m.checks, check{name: name, probe: probe, required: true, timeout: timeout})
	return m
}

// Observe adds a backend that is reported but does not affect IsOnline.
func (m *Monitor) Observe(name string, probe Probe, timeout time.Duration) *Monitor {
	m.checks = append(m.checks, check{name: name, probe: probe, timeout: timeout})
	return m
}

// OnReconnect registers fn to run after an offline to online transition.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnected = append(m.reconnected, fn)
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	status.Backends = make(map[string]bool, len(m.status.Backends))
	for k, v := range m.status.Backends {
		status.Backends[k] = v
	}
	return status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(context.Background())
	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every probe once and updates the status.
func (m *Monitor) Refresh(ctx context.Context) Status {
	bufferOK, bufferSize := m.checkBuffer()
	status := Status{
		Backends:   make(map[string]bool, len(m.checks)),
		Buffer:     bufferOK,
		BufferSize: bufferSize,
		LastCheck:  time.Now(),
	}
	online := true
	for _, c := range m.checks {
		ok := m.run(ctx, c)
		status.Backends[c.name] = ok
		if c.required && !ok {
			online = false
		}
	}

	observability.RecordBackends(status.Backends, bufferSize)

	m.mu.Lock()
	wasOnline := m.online
	m.status = status
	m.online = online
	listeners := append([]func(){}, m.reconnected...)
	m.mu.Unlock()

	switch {
	case wasOnline && !online:
		m.logger.Warn("primary storage unreachable, buffering writes", zap.Any("backends", status.Backends))
	case !wasOnline && online:
		m.logger.Info("primary storage reachable again", zap.Int("buffered", bufferSize))
		for _, fn := range listeners {
			fn()
		}
	}
	return status
}

func (m *Monitor) run(ctx context.Context, c check) bool {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.probe(probeCtx); err != nil {
		m.logger.Debug("probe failed", zap.String("backend", c.name), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) checkBuffer() (bool, int) {
	if m.buffer == nil {
		return false, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
