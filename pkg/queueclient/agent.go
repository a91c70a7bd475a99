// Package queueclient keeps a local copy of the queue snapshot in sync with
// a queuesync server. Pushed updates over the WebSocket are authoritative;
// a periodic HTTP pull only fills the gap before the first push arrives.
package queueclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"queuesync/internal/constants"
	"queuesync/internal/errors"
	"queuesync/internal/logfields"
	"queuesync/pkg/protocol"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const clientReadLimit = 64 << 10

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source tells where the held snapshot came from.
type Source int

const (
	SourceNone Source = iota
	SourcePull
	SourcePush
)

func (s Source) String() string {
	switch s {
	case SourcePull:
		return "pull"
	case SourcePush:
		return "push"
	default:
		return "none"
	}
}

// Conn is the subset of *websocket.Conn the agent uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type Dialer func(ctx context.Context, wsURL string) (Conn, error)

type Fetcher func(ctx context.Context) (*protocol.Snapshot, error)

type Options struct {
	// BaseURL is the server's http(s) root, e.g. http://localhost:8080.
	BaseURL string
	// UserID, when set, is sent in an auth frame after every connect so
	// chat messages for that user are routed here.
	UserID string

	ReconnectDelay time.Duration
	PullInterval   time.Duration
	DialTimeout    time.Duration

	HTTPClient *http.Client
	Dialer     Dialer
	Fetcher    Fetcher
	Clock      Clock
	Logger     *logrus.Logger

	// OnSnapshot and OnChat run on the agent's own goroutines, one call at
	// a time per source. They must not call Close, which waits for those
	// goroutines; cancel the context given to Start instead.
	OnSnapshot func(snapshot protocol.Snapshot, source Source)
	OnChat     func(msg protocol.AIChat)
}

type Agent struct {
	opts      Options
	wsURL     string
	statusURL string
	logger    *logrus.Logger
	errLogger *errors.Logger

	mu       sync.Mutex
	state    State
	snapshot *protocol.Snapshot
	source   Source
	timer    Timer
	conn     Conn
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool

	wg sync.WaitGroup
}

func New(opts Options) (*Agent, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	ws := *base
	switch base.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid base URL scheme %q: must be http or https", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base URL: missing host")
	}
	ws.Path = base.Path + "/ws"
	status := *base
	status.Path = base.Path + "/queue/status"

	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = constants.DefaultReconnectDelaySec * time.Second
	}
	if opts.PullInterval <= 0 {
		opts.PullInterval = constants.DefaultPullIntervalSec * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = constants.DefaultDialTimeoutSec * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.DialTimeout}
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	a := &Agent{
		opts:      opts,
		wsURL:     ws.String(),
		statusURL: status.String(),
		logger:    opts.Logger,
		errLogger: errors.NewLogger(opts.Logger),
	}
	if a.opts.Dialer == nil {
		a.opts.Dialer = a.dialWebSocket
	}
	if a.opts.Fetcher == nil {
		a.opts.Fetcher = a.fetchStatus
	}
	return a, nil
}

// Start connects and begins the periodic pull. It returns immediately.
// Cancelling ctx tears the agent down exactly like Close.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started || a.state == StateClosed {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	done := a.ctx.Done()
	a.mu.Unlock()

	go func() {
		<-done
		a.Close()
	}()

	a.wg.Add(1)
	go a.pullLoop()
	a.connect()
}

// Close cancels any pending reconnect and the pull loop, closes the socket
// and waits for the agent's goroutines. The agent cannot be restarted.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.state == StateClosed {
		a.mu.Unlock()
		return
	}
	a.setStateLocked(StateClosed)
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	conn := a.conn
	a.conn = nil
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	a.wg.Wait()
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns the held snapshot and its source, or nil when nothing
// has been received yet.
func (a *Agent) Snapshot() (*protocol.Snapshot, Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshot == nil {
		return nil, SourceNone
	}
	s := *a.snapshot
	return &s, a.source
}

// ReconnectPending reports whether a reconnect timer is scheduled.
func (a *Agent) ReconnectPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

func (a *Agent) connect() {
	a.mu.Lock()
	if a.state != StateDisconnected || a.ctx == nil || a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	// The socket and the reconnect timer are never both live.
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.setStateLocked(StateConnecting)
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go a.run(ctx)
}

func (a *Agent) run(ctx context.Context) {
	defer a.wg.Done()

	dialCtx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	conn, err := a.opts.Dialer(dialCtx, a.wsURL)
	cancel()
	if err != nil {
		a.connectionLost(err)
		return
	}

	a.mu.Lock()
	if a.state != StateConnecting {
		a.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
		return
	}
	a.conn = conn
	a.setStateLocked(StateConnected)
	a.mu.Unlock()

	a.logger.WithField(logfields.URL, a.wsURL).Info("Connected to queue updates")

	if a.opts.UserID != "" {
		if err := a.sendAuth(ctx, conn); err != nil {
			a.dropConn(conn, err)
			return
		}
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			a.dropConn(conn, err)
			return
		}
		if typ == websocket.MessageText {
			a.handleFrame(data)
		}
	}
}

func (a *Agent) sendAuth(ctx context.Context, conn Conn) error {
	frame, err := protocol.Encode(protocol.NewAuth(a.opts.UserID))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, frame)
}

// dropConn handles the end of a live socket. Only the current socket can
// move the agent back to disconnected.
func (a *Agent) dropConn(conn Conn, err error) {
	a.mu.Lock()
	current := a.conn == conn
	if current {
		a.conn = nil
	}
	a.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	if current {
		a.connectionLost(err)
	}
}

// connectionLost moves to disconnected and schedules exactly one
// reconnect, unless one is already pending or the agent is shutting down.
func (a *Agent) connectionLost(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateClosed || a.ctx.Err() != nil {
		return
	}

	a.errLogger.LogRetryableError(errors.NewConnectionLostError(a.wsURL, err), "Queue update connection lost", logrus.Fields{
		"retry_in": a.opts.ReconnectDelay.String(),
	})

	a.setStateLocked(StateDisconnected)
	if a.timer != nil {
		return
	}
	a.timer = a.opts.Clock.AfterFunc(a.opts.ReconnectDelay, a.reconnect)
}

func (a *Agent) reconnect() {
	a.mu.Lock()
	a.timer = nil
	a.mu.Unlock()
	a.connect()
}

func (a *Agent) handleFrame(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		a.logger.WithError(err).Debug("Ignoring malformed frame")
		return
	}

	switch m := msg.(type) {
	case protocol.QueueUpdate:
		a.mu.Lock()
		if a.state != StateConnected {
			a.mu.Unlock()
			return
		}
		snapshot := m.Snapshot
		a.snapshot = &snapshot
		a.source = SourcePush
		a.mu.Unlock()

		if a.opts.OnSnapshot != nil {
			a.opts.OnSnapshot(snapshot, SourcePush)
		}
	case protocol.AIChat:
		if a.opts.OnChat != nil {
			a.opts.OnChat(m)
		}
	default:
		a.logger.WithField(logfields.MessageType, msg.MessageType()).Debug("Ignoring frame of unhandled type")
	}
}

func (a *Agent) pullLoop() {
	defer a.wg.Done()

	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()

	ticker := a.opts.Clock.NewTicker(a.opts.PullInterval)
	defer ticker.Stop()

	a.pull(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.pull(ctx)
		}
	}
}

// pull adopts the server's snapshot only while no push has landed.
func (a *Agent) pull(ctx context.Context) {
	snapshot, err := a.opts.Fetcher(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.WithError(err).Debug("Queue status pull failed")
		}
		return
	}
	if snapshot == nil {
		return
	}

	a.mu.Lock()
	if a.source == SourcePush || a.state == StateClosed {
		a.mu.Unlock()
		return
	}
	s := *snapshot
	a.snapshot = &s
	a.source = SourcePull
	a.mu.Unlock()

	if a.opts.OnSnapshot != nil {
		a.opts.OnSnapshot(s, SourcePull)
	}
}

func (a *Agent) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.state = s
	a.logger.WithField(logfields.State, s.String()).Debug("Queue client state changed")
}

func (a *Agent) dialWebSocket(ctx context.Context, wsURL string) (Conn, error) {
	// The dial is bounded by ctx; the pull client's Timeout is not reused here.
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(clientReadLimit)
	return conn, nil
}

func (a *Agent) fetchStatus(ctx context.Context) (*protocol.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.statusURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("queue status: unexpected status %d", resp.StatusCode)
	}
	var snapshot protocol.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}
	return &snapshot, nil
}
