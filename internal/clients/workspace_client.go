package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WorkspaceClient mirrors per-sample results into a document workspace
// database: each sample has a page carrying its latest measured
// resistance. The mirror is best-effort; failures never fail a run.
type WorkspaceClient struct {
	baseURL    string
	token      string
	databaseID string
	client     *http.Client
	logger     *zap.Logger
}

// NewWorkspaceClient returns client wrapper. An empty baseURL disables it.
func NewWorkspaceClient(baseURL, token, databaseID string, logger *zap.Logger) *WorkspaceClient {
	return &WorkspaceClient{
		baseURL:    baseURL,
		token:      token,
		databaseID: databaseID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Enabled reports whether the mirror is configured.
func (c *WorkspaceClient) Enabled() bool {
	return c.baseURL != "" && c.databaseID != ""
}

type workspacePage struct {
	ID string `json:"id"`
}

type workspaceQueryResponse struct {
	Results []workspacePage `json:"results"`
}

// UpsertSampleResistance updates the workspace page for the sample with
// the measured resistance, creating the page when none exists.
func (c *WorkspaceClient) UpsertSampleResistance(ctx context.Context, sampleName string, resistance float64) error {
	if !c.Enabled() {
		c.logger.Debug("workspace mirror disabled, skipping upsert")
		return nil
	}

	pageID, err := c.findPage(ctx, sampleName)
	if err != nil {
		return err
	}

	properties := map[string]interface{}{
		"Resistance": map[string]interface{}{"number": resistance},
	}

	if pageID != "" {
		c.logger.Debug("updating workspace page", zap.String("sample", sampleName), zap.String("page_id", pageID))
		return c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/pages/%s", pageID), map[string]interface{}{
			"properties": properties,
		}, nil)
	}

	c.logger.Debug("creating workspace page", zap.String("sample", sampleName))
	properties["Sample Name"] = map[string]interface{}{
		"title": []map[string]interface{}{
			{"text": map[string]string{"content": sampleName}},
		},
	}
	return c.do(ctx, http.MethodPost, "/v1/pages", map[string]interface{}{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": properties,
	}, nil)
}

func (c *WorkspaceClient) findPage(ctx context.Context, sampleName string) (string, error) {
	query := map[string]interface{}{
		"filter": map[string]interface{}{
			"property": "Sample Name",
			"title":    map[string]string{"equals": sampleName},
		},
	}

	var resp workspaceQueryResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/query", c.databaseID), query, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].ID, nil
}

func (c *WorkspaceClient) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("workspace request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("workspace returned non-success",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return fmt.Errorf("clients: workspace %s returned %d", path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
