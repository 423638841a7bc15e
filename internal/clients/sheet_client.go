package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Result sheet header, written once when the sheet is empty.
var sheetHeader = []string{"Timestamp", "Sample Name", "Test Type", "Value 1", "Value 2", "Tester"}

// SheetClient appends result rows to a spreadsheet range over its HTTP
// values API. Best-effort mirror, same contract as WorkspaceClient.
type SheetClient struct {
	baseURL       string
	spreadsheetID string
	sheetRange    string
	client        *http.Client
	logger        *zap.Logger
}

// NewSheetClient returns client wrapper. An empty baseURL disables it.
func NewSheetClient(baseURL, spreadsheetID, sheetRange string, logger *zap.Logger) *SheetClient {
	return &SheetClient{
		baseURL:       baseURL,
		spreadsheetID: spreadsheetID,
		sheetRange:    sheetRange,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Enabled reports whether the mirror is configured.
func (c *SheetClient) Enabled() bool {
	return c.baseURL != "" && c.spreadsheetID != ""
}

type sheetValues struct {
	Values [][]string `json:"values"`
}

// AppendRows appends the result rows, prepending the header row when
// the sheet is still empty.
func (c *SheetClient) AppendRows(ctx context.Context, rows [][]string) error {
	if !c.Enabled() {
		c.logger.Debug("sheet mirror disabled, skipping append")
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	existing, err := c.readRange(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		rows = append([][]string{sheetHeader}, rows...)
	}

	payload, err := json.Marshal(sheetValues{Values: rows})
	if err != nil {
		return err
	}

	appendURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED",
		c.baseURL, c.spreadsheetID, url.PathEscape(c.sheetRange))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, appendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("sheet append failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("sheet append returned non-success", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("clients: sheet append returned %d", resp.StatusCode)
	}

	c.logger.Debug("rows appended to sheet", zap.Int("rows", len(rows)))
	return nil
}

func (c *SheetClient) readRange(ctx context.Context) ([][]string, error) {
	readURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL, c.spreadsheetID, url.PathEscape(c.sheetRange))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("sheet read failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("clients: sheet read returned %d", resp.StatusCode)
	}

	var values sheetValues
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return nil, err
	}
	return values.Values, nil
}
