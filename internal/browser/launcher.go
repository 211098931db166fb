package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// LauncherClient talks to the local antidetect-browser launcher API:
// profile listing, starting and stopping remote browser sessions, and the
// per-profile bookmark list.
type LauncherClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger
}

func NewLauncherClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *LauncherClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LauncherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type launcherEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type profileListData struct {
	List []models.Profile `json:"list"`
}

type startBrowserData struct {
	DebugURL string `json:"debug_url"`
	WSURL    string `json:"ws_url,omitempty"`
}

type bookmarkListData struct {
	List []models.Bookmark `json:"list"`
}

// ListProfiles fetches the full profile list in one unbounded page.
func (c *LauncherClient) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/profiles?page_size=0", nil)
	if err != nil {
		return nil, err
	}
	var list profileListData
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode profile list: %w", err)
	}
	return list.List, nil
}

// StartProfile launches the remote browser for a profile and returns the
// CDP debug endpoint to attach to.
func (c *LauncherClient) StartProfile(ctx context.Context, profileID string) (string, error) {
	body := map[string]string{"profile_id": profileID}
	data, err := c.do(ctx, http.MethodPost, "/api/v1/browser/start", body)
	if err != nil {
		return "", err
	}
	var started startBrowserData
	if err := json.Unmarshal(data, &started); err != nil {
		return "", fmt.Errorf("failed to decode start response: %w", err)
	}
	if started.DebugURL == "" {
		return "", fmt.Errorf("launcher returned no debug endpoint for profile %s", profileID)
	}
	return started.DebugURL, nil
}

func (c *LauncherClient) StopProfile(ctx context.Context, profileID string) error {
	body := map[string]string{"profile_id": profileID}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/browser/stop", body)
	return err
}

// Bookmarks returns the profile's saved bookmark bar entries. Titles are
// matched against creator folder names by exact equality.
func (c *LauncherClient) Bookmarks(ctx context.Context, profileID string) ([]models.Bookmark, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/profiles/"+profileID+"/bookmarks", nil)
	if err != nil {
		return nil, err
	}
	var list bookmarkListData
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode bookmark list: %w", err)
	}
	return list.List, nil
}

func (c *LauncherClient) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build launcher request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("launcher request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read launcher response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("launcher returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var envelope launcherEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode launcher envelope: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("launcher error %d: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}
