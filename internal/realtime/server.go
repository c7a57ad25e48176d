package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/klarolink/notifications/internal/domain"
)

// NotificationMarker flips the read flag of a stored notification.
type NotificationMarker interface {
	MarkNotificationRead(ctx context.Context, id int64) (*domain.Notification, error)
}

// Options configures a Server. Zero fields take the defaults below.
type Options struct {
	Path              string
	DefaultCategories []string
	HeartbeatInterval time.Duration
	AllowedOrigins    []string
	WriteWait         time.Duration
	SendBuffer        int
	StoreTimeout      time.Duration
}

const (
	DefaultPath              = "/ws/notifications"
	DefaultCategory          = "Business Intelligence and Analytics"
	DefaultHeartbeatInterval = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if len(o.DefaultCategories) == 0 {
		o.DefaultCategories = []string{DefaultCategory}
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	return o
}

// Server is the notification broadcast server. It owns one listening
// endpoint, tracks live connections with their category subscriptions and
// fans notification events out to them. Construct one per process and hand
// it to whatever needs to broadcast.
type Server struct {
	opts        Options
	upgrader    websocket.Upgrader
	subscribers domain.SubscriberRepository
	marker      NotificationMarker
	relay       Relay
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.RWMutex
	clients map[string]*Client
	httpSrv *http.Server

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a broadcast server. subscribers, marker and relay may be nil.
func NewServer(opts Options, subscribers domain.SubscriberRepository, marker NotificationMarker, relay Relay, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:        opts.withDefaults(),
		subscribers: subscribers,
		marker:      marker,
		relay:       relay,
		logger:      logger,
		now:         time.Now,
		clients:     make(map[string]*Client),
		stop:        make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler serves the notification endpoint at the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.opts.Path, s)
	return mux
}

// ListenAndServe binds the notification endpoint to addr and blocks.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info("notification server listening", zap.String("addr", addr), zap.String("path", s.opts.Path))
	return srv.ListenAndServe()
}

// ServeHTTP accepts a new duplex connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	q := r.URL.Query()
	// userId is taken at face value; the endpoint performs no authentication.
	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		s.logger.Warn("rejecting connection without userId", zap.String("remote", r.RemoteAddr))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "userId is required"),
			time.Now().Add(s.opts.WriteWait))
		conn.Close()
		return
	}

	categories := normalizeCategories(strings.Split(q.Get("categories"), ","))
	if len(categories) == 0 {
		categories = append([]string(nil), s.opts.DefaultCategories...)
	}

	c := newClient(uuid.NewString(), userID, conn, categories, s.opts.SendBuffer)
	s.sendTo(c, domain.MessagePing, domain.Handshake{ConnectionID: c.ID, Categories: categories})
	s.add(c)

	s.persist(c, "register subscriber", func(ctx context.Context) error {
		now := s.now()
		return s.subscribers.RegisterSubscriber(ctx, &domain.Subscriber{
			UserID:       c.UserID,
			ConnectionID: c.ID,
			Categories:   categories,
			SubscribedAt: now,
			LastPing:     now,
			IsActive:     true,
		})
	})

	s.logger.Info("notification client connected",
		zap.String("connection_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.Strings("categories", categories),
	)

	go c.writePump(s)
	go c.readPump(s)
}

// Broadcast sends an event to every open connection subscribed to any of
// categories (the default categories when empty) and returns the number of
// local connections it was queued for. Delivery is fire-and-forget.
func (s *Server) Broadcast(t domain.MessageType, payload any, categories []string) int {
	categories = normalizeCategories(categories)
	if len(categories) == 0 {
		categories = s.opts.DefaultCategories
	}

	env, err := domain.NewEnvelope(t, payload, s.now())
	if err != nil {
		s.logger.Error("failed to encode broadcast", zap.String("type", string(t)), zap.Error(err))
		return 0
	}
	msg, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("failed to encode broadcast", zap.String("type", string(t)), zap.Error(err))
		return 0
	}

	if s.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
		defer cancel()
		err := s.relay.Publish(ctx, RelayFrame{Categories: categories, Message: msg})
		if err == nil {
			return 0
		}
		s.logger.Warn("relay publish failed, delivering locally", zap.Error(err))
	}
	return s.deliver(msg, categories)
}

func (s *Server) deliver(msg []byte, categories []string) int {
	delivered := 0
	for _, c := range s.snapshot() {
		if !c.subscribedToAny(categories) {
			continue
		}
		if c.trySend(msg) {
			delivered++
		}
	}
	return delivered
}

// Run drives the heartbeat sweep and, when a relay is configured, relay
// delivery. It returns when ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.relay != nil {
		go func() {
			if err := s.relay.Subscribe(ctx, func(f RelayFrame) { s.deliver(f.Message, f.Categories) }); err != nil {
				s.logger.Error("relay subscription ended", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep terminates connections that missed the previous ping and pings the rest.
func (s *Server) sweep() {
	for _, c := range s.snapshot() {
		if !c.alive.Load() {
			s.logger.Info("terminating unresponsive connection",
				zap.String("connection_id", c.ID),
				zap.String("user_id", c.UserID),
			)
			c.conn.Close()
			s.remove(c)
			continue
		}
		c.alive.Store(false)
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
			s.logger.Debug("heartbeat ping failed", zap.String("connection_id", c.ID), zap.Error(err))
		}
	}
}

// Shutdown stops the heartbeat, closes every connection with a going-away
// code and closes the listening endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	for _, c := range s.snapshot() {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ClientCount returns the number of live connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ClientInfo describes one live connection.
type ClientInfo struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Categories   []string  `json:"categories"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Clients returns a snapshot of the live connections.
func (s *Server) Clients() []ClientInfo {
	clients := s.snapshot()
	out := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, ClientInfo{
			ConnectionID: c.ID,
			UserID:       c.UserID,
			Categories:   c.Categories(),
			ConnectedAt:  c.ConnectedAt,
		})
	}
	return out
}

func (s *Server) handleMessage(c *Client, raw []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("malformed client message", zap.String("connection_id", c.ID), zap.Error(err))
		return
	}

	switch env.Type {
	case domain.MessagePing:
		s.sendTo(c, domain.MessagePong, nil)

	case domain.MessageSubscribeCategories:
		categories := normalizeCategories(env.RequestedCategories())
		if len(categories) == 0 {
			categories = append([]string(nil), s.opts.DefaultCategories...)
		}
		c.setCategories(categories)
		s.persist(c, "update subscriber categories", func(ctx context.Context) error {
			return s.subscribers.UpdateSubscriberCategories(ctx, c.UserID, c.ID, categories)
		})
		s.logger.Debug("categories updated", zap.String("connection_id", c.ID), zap.Strings("categories", categories))

	case domain.MessageMarkRead:
		id, ok := env.RequestedNotificationID()
		if !ok {
			s.logger.Warn("mark_read without notification_id", zap.String("connection_id", c.ID))
			return
		}
		s.markRead(id)

	default:
		s.logger.Debug("ignoring unknown message type", zap.String("connection_id", c.ID), zap.String("type", string(env.Type)))
	}
}

func (s *Server) markRead(id int64) {
	if s.marker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	n, err := s.marker.MarkNotificationRead(ctx, id)
	if err != nil {
		s.logger.Warn("mark_read failed", zap.Int64("notification_id", id), zap.Error(err))
		return
	}
	s.Broadcast(domain.MessageUpdated, n.Decorate(s.now()), []string{n.Category})
}

func (s *Server) sendTo(c *Client, t domain.MessageType, data any) {
	env, err := domain.NewEnvelope(t, data, s.now())
	if err != nil {
		s.logger.Error("failed to encode message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	msg, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("failed to encode message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	c.trySend(msg)
}

func (s *Server) add(c *Client) {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
}

// remove drops c from the live set once; later calls are no-ops.
func (s *Server) remove(c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c.ID]
	delete(s.clients, c.ID)
	s.mu.Unlock()
	if !ok {
		return
	}

	c.close(websocket.CloseNormalClosure, "")
	s.persist(c, "deactivate subscriber", func(ctx context.Context) error {
		return s.subscribers.DeactivateSubscriber(ctx, c.UserID, c.ID)
	})
	s.logger.Info("notification client disconnected", zap.String("connection_id", c.ID), zap.String("user_id", c.UserID))
}

func (s *Server) snapshot() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// persist runs a subscriber-registry write in the background, after every
// earlier write for the same connection has finished. Failures are logged
// and never reach the connection.
func (s *Server) persist(c *Client, op string, fn func(ctx context.Context) error) {
	if s.subscribers == nil {
		return
	}
	prev, done := c.chainWrite()
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("subscriber registry write failed",
				zap.String("op", op),
				zap.String("connection_id", c.ID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

func normalizeCategories(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
