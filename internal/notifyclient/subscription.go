// Package notifyclient keeps a live, self-healing view of notifications for
// one user. It loads a REST snapshot, applies socket events on top of it and
// falls back to polling while the socket is down.
package notifyclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/klarolink/notifications/internal/domain"
)

const (
	DefaultPollInterval         = 30 * time.Second
	DefaultMaxReconnectAttempts = 5

	baseReconnectDelay = time.Second
	maxReconnectDelay  = 30 * time.Second

	defaultSocketPath = "/ws/notifications"
)

// ErrClosed is returned by operations on a closed subscription.
var ErrClosed = errors.New("subscription closed")

// Toast is a transient alert for a newly created notification.
type Toast struct {
	Notification *domain.Notification
	MarkRead     func(ctx context.Context) error
}

// Options configures a Subscription.
type Options struct {
	APIBaseURL string
	// WSBaseURL is the socket endpoint, e.g. ws://localhost:8080/ws/notifications.
	WSBaseURL  string
	UserID     string
	Categories []string
	Filters    domain.NotificationFilter

	PollInterval         time.Duration
	MaxReconnectAttempts int

	EnableToasts bool
	OnToast      func(Toast)
	OnChange     func(State)

	// Token is sent as a bearer token on REST calls.
	Token      string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
}

// ConnectionStatus describes the socket side of a subscription.
type ConnectionStatus struct {
	Connected         bool      `json:"connected"`
	LastConnected     time.Time `json:"last_connected"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
}

// State is a snapshot of a subscription.
type State struct {
	Notifications []*domain.Notification    `json:"notifications"`
	Stats         domain.NotificationStats  `json:"stats"`
	Loading       bool                      `json:"loading"`
	Err           string                    `json:"error,omitempty"`
	Status        ConnectionStatus          `json:"connection_status"`
	Filters       domain.NotificationFilter `json:"filters"`
}

type stopper interface {
	Stop() bool
}

// Subscription is a live view of notifications for one user.
type Subscription struct {
	opts   Options
	api    *apiClient
	dialer *websocket.Dialer
	logger *zap.Logger

	// after schedules f once after d.
	after func(d time.Duration, f func()) stopper
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connecting     bool
	closed         bool
	reconnectTimer stopper
	pollTimer      stopper

	writeMu sync.Mutex
}

// New creates a subscription. Nothing happens until Start.
func New(opts Options) *Subscription {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if len(opts.Filters.Categories) == 0 && len(opts.Categories) > 0 {
		opts.Filters.Categories = opts.Categories
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Subscription{
		opts:   opts,
		api:    newAPIClient(opts.APIBaseURL, opts.Token, opts.HTTPClient),
		dialer: dialer,
		logger: opts.Logger,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		state: State{
			Notifications: []*domain.Notification{},
			Filters:       opts.Filters,
		},
	}
}

// Start loads the initial snapshot, opens the socket and arms polling.
// A failed initial fetch is recorded in the state and returned; the socket
// and the poller are started regardless.
func (s *Subscription) Start(ctx context.Context) error {
	err := s.FetchNotifications(ctx, nil)
	s.ConnectWebSocket()
	s.armPoll()
	return err
}

// FetchNotifications replaces the local list with a REST snapshot. filters,
// when given, are merged over the current filter set.
func (s *Subscription) FetchNotifications(ctx context.Context, filters *domain.NotificationFilter) error {
	s.mu.Lock()
	if filters != nil {
		s.state.Filters = s.state.Filters.Merge(*filters)
	}
	current := s.state.Filters
	s.state.Loading = true
	s.mu.Unlock()
	s.notify()

	list, err := s.api.list(ctx, current)

	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Err = err.Error()
	} else {
		s.state.Err = ""
		s.state.Notifications = list.Notifications
		if s.state.Notifications == nil {
			s.state.Notifications = []*domain.Notification{}
		}
		s.state.Stats = list.Stats
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Warn("fetch notifications failed", zap.Error(err))
	}
	return err
}

// ConnectWebSocket opens the socket in the background. It does nothing
// without a user id or while a connection is open or being opened.
func (s *Subscription) ConnectWebSocket() {
	s.mu.Lock()
	if s.opts.UserID == "" || s.conn != nil || s.connecting || s.closed {
		s.mu.Unlock()
		return
	}
	s.connecting = true
	endpoint := s.endpoint()
	s.mu.Unlock()

	go s.dial(endpoint)
}

func (s *Subscription) dial(endpoint string) {
	conn, _, err := s.dialer.DialContext(s.ctx, endpoint, nil)
	if err != nil {
		s.logger.Warn("notification socket dial failed", zap.Error(err))
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		s.handleClose()
		return
	}

	s.mu.Lock()
	s.connecting = false
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state.Status.Connected = true
	s.state.Status.ReconnectAttempts = 0
	s.state.Status.LastConnected = s.now()
	s.mu.Unlock()
	s.notify()

	s.logger.Info("notification socket connected", zap.String("user_id", s.opts.UserID))
	s.readLoop(conn)
}

func (s *Subscription) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("notification socket closed", zap.Error(err))
			break
		}
		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("malformed notification message", zap.Error(err))
			continue
		}
		s.handleMessage(env)
	}

	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	s.handleClose()
}

// handleClose records a lost connection and schedules a reconnect while
// attempts remain.
func (s *Subscription) handleClose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	attempt := s.state.Status.ReconnectAttempts
	s.state.Status.Connected = false
	s.state.Status.ReconnectAttempts++
	if attempt < s.opts.MaxReconnectAttempts {
		delay := reconnectDelay(attempt)
		s.reconnectTimer = s.after(delay, s.ConnectWebSocket)
		s.logger.Info("scheduling notification socket reconnect",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
	} else {
		s.logger.Warn("notification socket reconnect attempts exhausted, polling only")
	}
	s.mu.Unlock()
	s.notify()
}

func reconnectDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return maxReconnectDelay
	}
	d := baseReconnectDelay << attempt
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

// handleMessage applies one socket event to the local list.
func (s *Subscription) handleMessage(env domain.Envelope) {
	switch env.Type {
	case domain.MessageCreated:
		var n domain.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			s.logger.Warn("malformed notification_created", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.state.Notifications = append([]*domain.Notification{&n}, s.state.Notifications...)
		s.mu.Unlock()
		s.notify()
		s.toast(&n)

	case domain.MessageUpdated:
		var n domain.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			s.logger.Warn("malformed notification_updated", zap.Error(err))
			return
		}
		s.mutate(func(list []*domain.Notification) []*domain.Notification {
			for i, existing := range list {
				if existing.ID == n.ID {
					list[i] = &n
				}
			}
			return list
		})

	case domain.MessageDeleted:
		var marker domain.DeletionMarker
		if err := json.Unmarshal(env.Data, &marker); err != nil {
			s.logger.Warn("malformed notification_deleted", zap.Error(err))
			return
		}
		s.mutate(func(list []*domain.Notification) []*domain.Notification {
			return without(list, marker.ID)
		})

	case domain.MessagePing, domain.MessagePong:

	default:
		s.logger.Debug("ignoring notification message", zap.String("type", string(env.Type)))
	}
}

func (s *Subscription) toast(n *domain.Notification) {
	if !s.opts.EnableToasts || s.opts.OnToast == nil {
		return
	}
	id := n.ID
	s.opts.OnToast(Toast{
		Notification: n,
		MarkRead:     func(ctx context.Context) error { return s.MarkAsRead(ctx, id) },
	})
}

// MarkAsRead marks one notification read and applies it locally on success.
func (s *Subscription) MarkAsRead(ctx context.Context, id int64) error {
	read := true
	if _, err := s.api.update(ctx, id, domain.UpdateNotificationParams{IsRead: &read}); err != nil {
		s.fail("mark as read", err)
		return err
	}
	s.mutate(func(list []*domain.Notification) []*domain.Notification {
		for _, n := range list {
			if n.ID == id {
				n.IsRead = true
			}
		}
		return list
	})
	return nil
}

// MarkAllAsRead marks every notification under the current filters read.
func (s *Subscription) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	filters := s.state.Filters
	s.mu.Unlock()

	if _, err := s.api.bulk(ctx, domain.BulkMarkRead, filters); err != nil {
		s.fail("mark all as read", err)
		return err
	}
	s.mutate(func(list []*domain.Notification) []*domain.Notification {
		for _, n := range list {
			n.IsRead = true
		}
		return list
	})
	return nil
}

// ArchiveNotification archives one notification and drops it locally on success.
func (s *Subscription) ArchiveNotification(ctx context.Context, id int64) error {
	archived := true
	if _, err := s.api.update(ctx, id, domain.UpdateNotificationParams{IsArchived: &archived}); err != nil {
		s.fail("archive notification", err)
		return err
	}
	s.mutate(func(list []*domain.Notification) []*domain.Notification {
		return without(list, id)
	})
	return nil
}

// SubscribeCategories replaces the categories for this and future connections.
func (s *Subscription) SubscribeCategories(categories []string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.opts.Categories = append([]string(nil), categories...)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	env, err := domain.NewEnvelope(domain.MessageSubscribeCategories, nil, s.now())
	if err != nil {
		return err
	}
	env.Categories = categories
	env.UserID = s.opts.UserID
	return s.write(conn, env)
}

func (s *Subscription) write(conn *websocket.Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// State returns a copy of the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Notifications = make([]*domain.Notification, len(s.state.Notifications))
	for i, n := range s.state.Notifications {
		copied := *n
		st.Notifications[i] = &copied
	}
	return st
}

// Counts are the derived badges of a notification list.
type Counts struct {
	Unread   int `json:"unread"`
	Critical int `json:"critical"`
	Overdue  int `json:"overdue"`
}

// Counts derives the unread, critical and overdue badges of the list at now.
func (st State) Counts(now time.Time) Counts {
	var c Counts
	for _, n := range st.Notifications {
		if !n.IsRead {
			c.Unread++
		}
		if n.Priority == domain.PriorityCritical {
			c.Critical++
		}
		if n.IsOverdue(now) {
			c.Overdue++
		}
	}
	return c
}

// UnreadCount is the number of unread notifications in the local list.
func (s *Subscription) UnreadCount() int { return s.counts().Unread }

// CriticalCount is the number of critical notifications in the local list.
func (s *Subscription) CriticalCount() int { return s.counts().Critical }

// OverdueCount is the number of overdue notifications in the local list.
func (s *Subscription) OverdueCount() int { return s.counts().Overdue }

func (s *Subscription) counts() Counts {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Counts(now)
}

// Close shuts the socket and stops the reconnect and polling timers.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		conn.Close()
	}
}

func (s *Subscription) armPoll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pollTimer = s.after(s.opts.PollInterval, s.pollTick)
}

// pollTick refetches while the socket is down, then rearms itself.
func (s *Subscription) pollTick() {
	s.mu.Lock()
	connected := s.state.Status.Connected
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if !connected {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.PollInterval)
		_ = s.FetchNotifications(ctx, nil)
		cancel()
	}
	s.armPoll()
}

func (s *Subscription) mutate(fn func([]*domain.Notification) []*domain.Notification) {
	s.mu.Lock()
	s.state.Notifications = fn(s.state.Notifications)
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription) fail(op string, err error) {
	s.mu.Lock()
	s.state.Err = err.Error()
	s.mu.Unlock()
	s.notify()
	s.logger.Warn(op+" failed", zap.Error(err))
}

func (s *Subscription) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.State())
	}
}

// endpoint builds the socket URL. Callers hold s.mu.
func (s *Subscription) endpoint() string {
	u, err := url.Parse(s.opts.WSBaseURL)
	if err != nil {
		return s.opts.WSBaseURL
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultSocketPath
	}
	q := u.Query()
	q.Set("userId", s.opts.UserID)
	if len(s.opts.Categories) > 0 {
		q.Set("categories", strings.Join(s.opts.Categories, ","))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func without(list []*domain.Notification, id int64) []*domain.Notification {
	out := list[:0]
	for _, n := range list {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}
