package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klarolink/notifications/internal/auth"
	"github.com/klarolink/notifications/internal/domain"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Notification
	err    error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]*domain.Notification)}
}

func (r *memoryRepo) CreateNotification(_ context.Context, p domain.CreateNotificationParams) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.nextID++
	now := time.Now()
	n := &domain.Notification{
		ID: r.nextID, Category: p.Category, Priority: p.Priority, Status: p.Status, Title: p.Title,
		Description: p.Description, Metadata: p.Metadata, ProgressPercentage: p.ProgressPercentage,
		EstimatedCompletion: p.EstimatedCompletion, CreatedAt: now, UpdatedAt: now,
	}
	r.rows[n.ID] = n
	copied := *n
	return &copied, nil
}

func (r *memoryRepo) GetNotification(_ context.Context, id int64) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	copied := *n
	return &copied, nil
}

func (r *memoryRepo) matching(f domain.NotificationFilter) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range r.rows {
		archived := f.IsArchived != nil && *f.IsArchived
		if n.IsArchived != archived {
			continue
		}
		if len(f.Categories) > 0 && !contains(f.Categories, n.Category) {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (r *memoryRepo) ListNotifications(_ context.Context, f domain.NotificationFilter) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.matching(f), nil
}

func (r *memoryRepo) GetNotificationStats(_ context.Context, f domain.NotificationFilter) (domain.NotificationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.ComputeStats(r.matching(f), time.Now()), nil
}

func (r *memoryRepo) UpdateNotification(_ context.Context, id int64, p domain.UpdateNotificationParams) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	if p.Status != nil {
		n.Status = *p.Status
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.IsRead != nil {
		n.IsRead = *p.IsRead
	}
	if p.IsArchived != nil {
		n.IsArchived = *p.IsArchived
	}
	if p.ActualCompletion != nil {
		n.ActualCompletion = p.ActualCompletion
	}
	copied := *n
	return &copied, nil
}

func (r *memoryRepo) MarkNotificationRead(ctx context.Context, id int64) (*domain.Notification, error) {
	read := true
	return r.UpdateNotification(ctx, id, domain.UpdateNotificationParams{IsRead: &read})
}

func (r *memoryRepo) BulkUpdateNotifications(_ context.Context, action domain.BulkAction, f domain.NotificationFilter) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	affected := r.matching(f)
	for _, n := range affected {
		switch action {
		case domain.BulkMarkRead:
			r.rows[n.ID].IsRead = true
		case domain.BulkMarkUnread:
			r.rows[n.ID].IsRead = false
		case domain.BulkArchive:
			r.rows[n.ID].IsArchived = true
		case domain.BulkDelete:
			delete(r.rows, n.ID)
		}
	}
	return affected, nil
}

func (r *memoryRepo) DeleteNotification(_ context.Context, id int64) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	delete(r.rows, id)
	return n, nil
}

type broadcast struct {
	Type       domain.MessageType
	Categories []string
}

type recordingHub struct {
	mu     sync.Mutex
	events []broadcast
}

func (h *recordingHub) Broadcast(t domain.MessageType, _ any, categories []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcast{Type: t, Categories: categories})
	return 1
}

func (h *recordingHub) ClientCount() int { return 3 }

func (h *recordingHub) types() []domain.MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.MessageType
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	repo   *memoryRepo
	hub    *recordingHub
	jwt    *auth.JWTManager
	token  string
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	hub := &recordingHub{}
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwt.GenerateToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	service := domain.NewNotificationService(repo, hub, nil, zap.NewNop())
	router := NewRouter(
		NewNotificationHandler(service, zap.NewNop()),
		NewHealthHandler(pingFunc(func(context.Context) error { return nil }), hub),
		jwt,
		nil,
		zap.NewNop(),
	)
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)

	return &fixture{repo: repo, hub: hub, jwt: jwt, token: token, server: srv}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *fixture) create(t *testing.T, params domain.CreateNotificationParams) *domain.Notification {
	t.Helper()
	status, resp := f.do(t, http.MethodPost, "/api/admin/notifications", params)
	require.Equal(t, http.StatusCreated, status)
	var n domain.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &n))
	return &n
}

func TestCreateNotification(t *testing.T) {
	f := newFixture(t)

	n := f.create(t, domain.CreateNotificationParams{Title: " Weekly export ", Category: "Billing"})

	assert.Equal(t, "Weekly export", n.Title)
	assert.Equal(t, domain.PriorityMedium, n.Priority)
	assert.Equal(t, domain.StatusPending, n.Status)
	assert.Equal(t, domain.TypeInfo, n.Kind)
	assert.Equal(t, []domain.MessageType{domain.MessageCreated}, f.hub.types())
	assert.Equal(t, []string{"Billing"}, f.hub.events[0].Categories)
}

func TestCreateNotificationValidation(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/api/admin/notifications", map[string]any{"title": "", "category": "Billing", "priority": "urgent"})

	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "title")
	assert.Contains(t, resp.Error.Message, "priority")
	assert.Empty(t, f.hub.types())
}

func TestListNotifications(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.CreateNotificationParams{Title: "A", Category: "Billing", Priority: domain.PriorityCritical})
	f.create(t, domain.CreateNotificationParams{Title: "B", Category: "Reviews"})

	status, resp := f.do(t, http.MethodGet, "/api/admin/notifications?category=Billing", nil)
	require.Equal(t, http.StatusOK, status)

	var list domain.NotificationList
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, "A", list.Notifications[0].Title)
	assert.Equal(t, 1, list.Stats.Total)
	assert.Equal(t, 1, list.Stats.Critical)
}

func TestListNotificationsRejectsBadFilter(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodGet, "/api/admin/notifications?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPatchToTerminalStampsCompletion(t *testing.T) {
	f := newFixture(t)
	n := f.create(t, domain.CreateNotificationParams{Title: "Import", Category: "Billing"})

	status, resp := f.do(t, http.MethodPatch, "/api/admin/notifications/1", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, status)

	var got domain.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.NotNil(t, got.ActualCompletion)
	assert.Equal(t, domain.TypeSuccess, got.Kind)
	assert.Equal(t, []domain.MessageType{domain.MessageCreated, domain.MessageUpdated}, f.hub.types())
}

func TestPatchErrors(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPatch, "/api/admin/notifications/99", map[string]any{"is_read": true})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPatch, "/api/admin/notifications/abc", map[string]any{"is_read": true})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPatch, "/api/admin/notifications/1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeleteNotification(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.CreateNotificationParams{Title: "Import", Category: "Billing"})

	status, resp := f.do(t, http.MethodDelete, "/api/admin/notifications/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":1}`, string(resp.Data))
	assert.Equal(t, []domain.MessageType{domain.MessageCreated, domain.MessageDeleted}, f.hub.types())

	status, _ = f.do(t, http.MethodGet, "/api/admin/notifications/1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBulkMarkRead(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.CreateNotificationParams{Title: "A", Category: "Billing"})
	f.create(t, domain.CreateNotificationParams{Title: "B", Category: "Billing"})
	f.create(t, domain.CreateNotificationParams{Title: "C", Category: "Reviews"})

	status, resp := f.do(t, http.MethodPost, "/api/admin/notifications/bulk", map[string]any{
		"action":  "mark_read",
		"filters": map[string]any{"categories": []string{"Billing"}},
	})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"affected":2}`, string(resp.Data))

	n, err := f.repo.GetNotification(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, n.IsRead)
}

func TestBulkUnknownAction(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/admin/notifications/bulk", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errors.New("connection refused")

	status, resp := f.do(t, http.MethodGet, "/api/admin/notifications", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, resp.Error)
	assert.NotContains(t, resp.Error.Message, "connection refused")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/admin/notifications")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	require.NotNil(t, health.Connections)
	assert.Equal(t, 3, *health.Connections)
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	h := NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("down") }), nil)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
