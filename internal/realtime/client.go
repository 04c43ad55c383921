package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"example.com/potrack/internal/models"

	"github.com/pkg/errors"
)

// APIClient talks to the PO-track HTTP API. It implements WriteClient for
// the optimistic controllers and provides the bulk read that seeds the
// entity store.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	actorID    string
	actorName  string
}

// NewAPIClient creates a client for the given base URL, identifying writes
// as the given actor.
func NewAPIClient(baseURL, actorID, actorName string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		actorID:   actorID,
		actorName: actorName,
	}
}

// FetchItems performs the bulk read used to seed the store before the sync
// coordinator attaches.
func (c *APIClient) FetchItems(ctx context.Context) ([]*models.ItemSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/items", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build items request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "items request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("items request returned status %d", resp.StatusCode)
	}

	var body struct {
		Items []*models.ItemSnapshot `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode items response")
	}
	return body.Items, nil
}

// UpdateTrackProgress writes a new progress value for one department track.
func (c *APIClient) UpdateTrackProgress(ctx context.Context, itemID, department string, progress int, note string) error {
	payload := map[string]interface{}{
		"department": department,
		"progress":   progress,
		"note":       note,
		"actor_id":   c.actorID,
		"actor_name": c.actorName,
	}
	path := fmt.Sprintf("/api/v1/items/%s/progress", itemID)
	return c.patch(ctx, path, payload)
}

// UpdateDeliveredQuantity writes a new delivered quantity for an item.
func (c *APIClient) UpdateDeliveredQuantity(ctx context.Context, itemID string, quantity int) error {
	payload := map[string]interface{}{
		"delivered_quantity": quantity,
		"actor_id":           c.actorID,
		"actor_name":         c.actorName,
	}
	path := fmt.Sprintf("/api/v1/items/%s/delivery", itemID)
	return c.patch(ctx, path, payload)
}

func (c *APIClient) patch(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal write payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build write request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Preserve context.Canceled for the controller's supersede check.
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("write to %s returned status %d: %s", path, resp.StatusCode, detail)
	}
	return nil
}
