// Package hub fans queue snapshots out to every live WebSocket and routes
// chat messages to the connections tagged with their user.
package hub

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"queuesync/internal/constants"
	"queuesync/internal/errors"
	"queuesync/internal/logfields"
	"queuesync/internal/metrics"
	"queuesync/internal/models"
	"queuesync/internal/privacy"
	"queuesync/pkg/protocol"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

var errSendBufferFull = stderrors.New("send buffer full")

// Client is one live connection. Frames are written by a single goroutine
// in the order they were enqueued.
type Client struct {
	id        uuid.UUID
	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode websocket.StatusCode
}

func (c *Client) ID() string {
	return c.id.String()
}

// Done is closed once the client has been disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) shutdown(code websocket.StatusCode) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// Hub owns the registry of live connections and their optional user tags.
type Hub struct {
	logger    *logrus.Logger
	errLogger *errors.Logger
	metrics   *metrics.Metrics

	sendBuffer     int
	writeTimeout   time.Duration
	pingInterval   time.Duration
	readLimit      int64
	originPatterns []string

	mu      sync.Mutex
	clients map[*Client]string
	closed  bool
	wg      sync.WaitGroup
}

func New(logger *logrus.Logger, cfg models.HubConfig, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	h := &Hub{
		logger:         logger,
		errLogger:      errors.NewLogger(logger),
		metrics:        m,
		sendBuffer:     cfg.SendBufferSize,
		writeTimeout:   time.Duration(cfg.WriteTimeoutSec) * time.Second,
		pingInterval:   time.Duration(cfg.PingIntervalSec) * time.Second,
		readLimit:      cfg.ReadLimitBytes,
		originPatterns: cfg.OriginPatterns,
		clients:        make(map[*Client]string),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = constants.DefaultHubSendBufferSize
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = constants.DefaultHubWriteTimeoutSec * time.Second
	}
	if h.pingInterval <= 0 {
		h.pingInterval = constants.DefaultHubPingIntervalSec * time.Second
	}
	if h.readLimit <= 0 {
		h.readLimit = constants.DefaultHubReadLimitBytes
	}
	return h
}

// Accept registers an untagged connection and starts its writer.
func (h *Hub) Accept(conn Conn) *Client {
	c := &Client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.shutdown(websocket.StatusGoingAway)
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return c
	}
	h.clients[c] = ""
	count := len(h.clients)
	h.wg.Add(1)
	h.mu.Unlock()

	go h.writeLoop(c)

	h.metrics.SetConnectedClients(count)
	h.logger.WithFields(logrus.Fields{
		logfields.ClientID: c.ID(),
		logfields.Clients:  count,
	}).Debug("WebSocket client connected")
	return c
}

// OnMessage handles one inbound text frame. Anything that is not a
// well-formed auth frame is ignored.
func (h *Hub) OnMessage(c *Client, payload []byte) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		h.logger.WithError(err).WithField(logfields.ClientID, c.ID()).Debug("Ignoring malformed frame")
		return
	}

	auth, ok := msg.(protocol.Auth)
	if !ok {
		h.logger.WithFields(logrus.Fields{
			logfields.ClientID:    c.ID(),
			logfields.MessageType: msg.MessageType(),
		}).Debug("Ignoring frame of unhandled type")
		return
	}
	if auth.UserID == "" {
		return
	}

	h.mu.Lock()
	_, live := h.clients[c]
	if live {
		h.clients[c] = auth.UserID
	}
	h.mu.Unlock()

	if live {
		h.logger.WithFields(logrus.Fields{
			logfields.ClientID: c.ID(),
			logfields.UserID:   privacy.MaskUserID(auth.UserID),
		}).Debug("WebSocket client tagged")
	}
}

// Disconnect removes the client and closes its connection. Calling it
// more than once is harmless.
func (h *Hub) Disconnect(c *Client) {
	h.disconnect(c, websocket.StatusNormalClosure)
}

func (h *Hub) disconnect(c *Client, code websocket.StatusCode) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.shutdown(code)

	if ok {
		h.metrics.SetConnectedClients(count)
		h.logger.WithFields(logrus.Fields{
			logfields.ClientID: c.ID(),
			logfields.Clients:  count,
		}).Debug("WebSocket client disconnected")
	}
}

// BroadcastQueueUpdate enqueues the snapshot to every live connection and
// returns how many accepted it. Connections whose buffer is full are
// dropped; the others are unaffected.
func (h *Hub) BroadcastQueueUpdate(s *models.QueueSnapshot) int {
	if s == nil {
		return 0
	}
	frame, err := protocol.Encode(protocol.NewQueueUpdate(ToWireSnapshot(s)))
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode queue update")
		return 0
	}
	return h.fanOut(protocol.TypeQueueUpdate, frame, func(string) bool { return true })
}

// RouteChatMessage sends an ai_chat frame to connections tagged with
// userID. With no such connection the message is dropped here; it stays
// in the chat history.
func (h *Hub) RouteChatMessage(userID, body string, direction models.ChatDirection) int {
	frame, err := protocol.Encode(protocol.NewAIChat(body, direction == models.ChatFromUser))
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode chat message")
		return 0
	}

	delivered := h.fanOut(protocol.TypeAIChat, frame, func(tag string) bool { return tag == userID })
	if delivered == 0 {
		h.logger.WithField(logfields.UserID, privacy.MaskUserID(userID)).Debug("No live connection for chat message")
	}
	return delivered
}

// fanOut enqueues under the registry lock so that concurrent broadcasts
// reach every client's stream in the same order.
func (h *Hub) fanOut(messageType protocol.MessageType, frame []byte, match func(tag string) bool) int {
	var (
		delivered int
		failed    []*Client
	)

	h.mu.Lock()
	for c, tag := range h.clients {
		if !match(tag) {
			continue
		}
		select {
		case c.send <- frame:
			delivered++
		default:
			failed = append(failed, c)
		}
	}
	h.mu.Unlock()

	for _, c := range failed {
		h.dropClient(c, string(messageType), errSendBufferFull)
	}
	h.metrics.BroadcastDelivered(string(messageType), delivered)
	return delivered
}

// dropClient handles a TransportError: the failure is logged and counted
// and the client removed.
func (h *Hub) dropClient(c *Client, label string, cause error) {
	h.metrics.BroadcastFailed(label)
	h.errLogger.LogWarn(errors.NewTransportError(c.ID(), cause), "Dropping WebSocket client", logrus.Fields{
		logfields.MessageType: label,
	})
	h.disconnect(c, websocket.StatusPolicyViolation)
}

func (h *Hub) writeLoop(c *Client) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.Close(c.closeCode, "")
			return

		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				h.dropClient(c, "write", err)
				_ = c.conn.Close(c.closeCode, "")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				h.logger.WithError(err).WithField(logfields.ClientID, c.ID()).Debug("WebSocket ping failed")
				h.disconnect(c, websocket.StatusGoingAway)
				_ = c.conn.Close(c.closeCode, "")
				return
			}
		}
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop
// until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The server-wide timeouts would otherwise cut long-lived sockets.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WithError(err).Debug("WebSocket upgrade rejected")
		return
	}
	conn.SetReadLimit(h.readLimit)

	c := h.Accept(conn)
	h.readLoop(r.Context(), c)
}

func (h *Hub) readLoop(ctx context.Context, c *Client) {
	defer h.Disconnect(c)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				h.logger.WithError(err).WithField(logfields.ClientID, c.ID()).Debug("WebSocket read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.OnMessage(c, data)
	}
}

// Close disconnects every client and waits for their writers to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.disconnect(c, websocket.StatusGoingAway)
	}
	h.wg.Wait()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// TaggedCount returns how many live connections carry userID.
func (h *Hub) TaggedCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, tag := range h.clients {
		if tag == userID {
			n++
		}
	}
	return n
}

// ToWireSnapshot converts the service snapshot to its wire form.
func ToWireSnapshot(s *models.QueueSnapshot) protocol.Snapshot {
	return protocol.Snapshot{
		Count:         s.Count,
		EstimatedWait: s.EstimatedWait,
		BusinessStatus: protocol.BusinessStatus{
			IsOpen:       s.BusinessStatus.IsOpen,
			Message:      s.BusinessStatus.Message,
			NextOpenTime: s.BusinessStatus.NextOpenTime,
		},
		LastUpdate: s.LastUpdate,
	}
}
