package stream

import (
	"sync"
	"time"

	"pushbridge/pkg/logger"

	"go.uber.org/zap"
)

// State is the connection lifecycle state. Exactly one Manager exists per
// process and it is never in more than one state.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// Socket is one live stream connection. gorilla's *websocket.Conn
// satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a socket to a stream URL. Injected so tests never touch the
// network.
type Dialer interface {
	Dial(url string) (Socket, error)
}

// FrameHandler receives each raw frame read from the socket.
type FrameHandler func(frame []byte)

// Default backoff bounds: 5s, 10s, 20s, 40s, then capped at 60s.
const (
	DefaultBaseDelay = 5 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// Manager owns the single stream subscription for the active credential.
// It supervises connect, reconnect with exponential backoff, and teardown.
// All transitions happen under one mutex, so they never interleave.
type Manager struct {
	dialer    Dialer
	streamURL string
	baseDelay time.Duration
	maxDelay  time.Duration
	handler   FrameHandler

	mu          sync.Mutex
	state       State
	apiKey      string
	attempts    int
	intentional bool
	sock        Socket
	retryTimer  *time.Timer

	// gen identifies the current connection attempt. Callbacks from a
	// superseded socket carry an older generation and must not disturb
	// the live one.
	gen uint64
}

// NewManager creates a disconnected manager. Non-positive delays select the
// defaults.
func NewManager(dialer Dialer, streamURL string, baseDelay, maxDelay time.Duration, handler FrameHandler) *Manager {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Manager{
		dialer:    dialer,
		streamURL: streamURL,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		handler:   handler,
	}
}

// Start begins (or re-targets) the subscription for the given API key.
// It is a no-op while a connection attempt is already in flight, and a
// no-op for the key already live. A different key closes the current
// socket intentionally and dials fresh with the attempt counter reset.
func (m *Manager) Start(apiKey string) {
	if apiKey == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connecting {
		return
	}
	if m.state == Open {
		if m.apiKey == apiKey {
			return
		}
		m.intentional = true
		m.sock.Close()
		m.sock = nil
	}

	m.apiKey = apiKey
	m.attempts = 0
	m.cancelRetryLocked()
	m.connectLocked()
}

// Stop tears the subscription down and clears the credential so no further
// auto-reconnect occurs. Any pending reconnect timer is prevented from
// producing a new attempt even if it has already fired.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apiKey = ""
	m.cancelRetryLocked()
	if m.sock != nil {
		m.intentional = true
		m.sock.Close()
		m.sock = nil
	}
	m.gen++ // in-flight dials and read loops are now stale
	m.state = Disconnected
}

// HandleCredentialChange reacts to a credential store notification. A nil
// or empty credential is equivalent to Stop. A key identical to the one
// already held, or to the reported previous value, is a redundant
// notification and is ignored.
func (m *Manager) HandleCredentialChange(old, cred *CredentialView) {
	newKey := ""
	if cred != nil {
		newKey = cred.APIKey
	}
	if newKey == "" {
		m.Stop()
		return
	}

	m.mu.Lock()
	if newKey == m.apiKey || (old != nil && newKey == old.APIKey) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.Start(newKey)
}

// CredentialView is the read-only copy of the credential the manager works
// from.
type CredentialView struct {
	APIKey string
	UserID string
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts reports the consecutive failure count since the last open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Manager) connectLocked() {
	m.state = Connecting
	m.gen++
	gen := m.gen
	url := m.streamURL + "/" + m.apiKey
	go m.dial(gen, url)
}

func (m *Manager) dial(gen uint64, url string) {
	sock, err := m.dialer.Dial(url)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if err == nil {
			sock.Close()
		}
		return
	}

	if err != nil {
		logger.Warn("stream dial failed", zap.Error(err))
		m.state = Disconnected
		if m.apiKey != "" {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		return
	}

	m.sock = sock
	m.state = Open
	m.attempts = 0
	m.intentional = false
	m.cancelRetryLocked()
	m.mu.Unlock()

	logger.Info("stream connected")
	go m.readLoop(gen, sock)
}

func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			// Read errors and closes collapse into one path; the
			// close handling drives recovery.
			m.mu.Lock()
			m.handleCloseLocked(gen)
			m.mu.Unlock()
			return
		}

		m.mu.Lock()
		stale := gen != m.gen
		m.mu.Unlock()
		if stale {
			return
		}

		if m.handler != nil {
			m.handler(frame)
		}
	}
}

func (m *Manager) handleCloseLocked(gen uint64) {
	if gen != m.gen {
		// A superseded socket reporting its (intentional) close.
		m.intentional = false
		return
	}

	m.state = Disconnected
	m.sock = nil

	if m.intentional {
		m.intentional = false
		return
	}
	if m.apiKey == "" {
		return
	}

	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt:
// min(baseDelay * 2^attempts, maxDelay), then increments the counter. The
// exponent is uncapped; only the resulting delay is clamped.
func (m *Manager) scheduleReconnectLocked() {
	delay := backoffDelay(m.baseDelay, m.maxDelay, m.attempts)
	m.attempts++

	logger.Info("stream disconnected, reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", m.attempts),
	)

	m.cancelRetryLocked()
	m.retryTimer = time.AfterFunc(delay, m.retry)
}

// backoffDelay is min(base * 2^attempts, max). The shift is guarded so a
// long outage cannot overflow the duration.
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	if attempts >= 16 {
		return max
	}
	if d := base << uint(attempts); d < max {
		return d
	}
	return max
}

func (m *Manager) retry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop or a credential swap may have raced the timer firing; the
	// lock makes this check authoritative.
	if m.apiKey == "" || m.state != Disconnected {
		return
	}
	m.connectLocked()
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}
