package notifyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klarolink/notifications/internal/domain"
	"github.com/klarolink/notifications/pkg/response"
)

const notificationsPath = "/api/admin/notifications"

// apiClient is a thin JSON client for the admin notification endpoints.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(baseURL, token string, httpClient *http.Client) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// envelope mirrors response.Response with the data left undecoded.
type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

type bulkRequest struct {
	Action  domain.BulkAction         `json:"action"`
	Filters domain.NotificationFilter `json:"filters"`
}

type bulkResult struct {
	Affected int `json:"affected"`
}

func (c *apiClient) list(ctx context.Context, filter domain.NotificationFilter) (*domain.NotificationList, error) {
	path := notificationsPath
	if q := filter.Values().Encode(); q != "" {
		path += "?" + q
	}
	var out domain.NotificationList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) update(ctx context.Context, id int64, params domain.UpdateNotificationParams) (*domain.Notification, error) {
	var out domain.Notification
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/%d", notificationsPath, id), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) bulk(ctx context.Context, action domain.BulkAction, filter domain.NotificationFilter) (int, error) {
	var out bulkResult
	if err := c.do(ctx, http.MethodPost, notificationsPath+"/bulk", bulkRequest{Action: action, Filters: filter}, &out); err != nil {
		return 0, err
	}
	return out.Affected, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && env.Error != nil {
			return fmt.Errorf("%s %s failed (%d): %s", method, path, resp.StatusCode, env.Error.Message)
		}
		return fmt.Errorf("unexpected status %d on %s %s", resp.StatusCode, method, path)
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response from %s %s: %w", method, path, decodeErr)
	}
	if result == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("decoding response data from %s %s: %w", method, path, err)
	}
	return nil
}
