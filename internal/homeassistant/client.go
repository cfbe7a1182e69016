// Package homeassistant is a thin client for the Home Assistant REST API,
// covering the two collaborators the agent consumes: service calls for device
// control and the exposed-entity state snapshot.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Entity is one exposed device as seen by the agent. Read-only.
type Entity struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
	Domain       string `json:"domain"`
	State        string `json:"state"`
	AreaName     string `json:"area_name,omitempty"`
}

// Client talks to a Home Assistant instance using a long-lived access token.
type Client struct {
	baseURL        string
	token          string
	exposedDomains map[string]struct{}
	httpClient     *http.Client
}

// NewClient creates a Home Assistant client. exposedDomains limits which
// entity domains appear in snapshots; an empty list exposes everything.
func NewClient(baseURL, token string, exposedDomains []string, timeout time.Duration) *Client {
	domains := make(map[string]struct{}, len(exposedDomains))
	for _, d := range exposedDomains {
		d = strings.TrimSpace(strings.ToLower(d))
		if d != "" {
			domains[d] = struct{}{}
		}
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		exposedDomains: domains,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CallService invokes POST /api/services/{domain}/{service} with the given
// payload. Any non-2xx response is an error.
func (c *Client) CallService(ctx context.Context, domain, service string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("/api/services/%s/%s", domain, service), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call service %s.%s: %w", domain, service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("home assistant error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

type stateRecord struct {
	EntityID   string                 `json:"entity_id"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ExposedEntities returns the current state snapshot, keyed by entity id and
// filtered to the exposed domains. The friendly name falls back to the entity
// id, and a unit of measurement is appended to the state when present.
func (c *Client) ExposedEntities(ctx context.Context) (map[string]Entity, error) {
	req, err := c.newRequest(ctx, "GET", "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("home assistant error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var records []stateRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode states: %w", err)
	}

	entities := make(map[string]Entity, len(records))
	for _, rec := range records {
		domain, _, found := strings.Cut(rec.EntityID, ".")
		if !found {
			continue
		}
		if len(c.exposedDomains) > 0 {
			if _, ok := c.exposedDomains[domain]; !ok {
				continue
			}
		}

		entity := Entity{
			EntityID:     rec.EntityID,
			FriendlyName: rec.EntityID,
			Domain:       domain,
			State:        rec.State,
		}
		if name, ok := rec.Attributes["friendly_name"].(string); ok && name != "" {
			entity.FriendlyName = name
		}
		if unit, ok := rec.Attributes["unit_of_measurement"].(string); ok && unit != "" {
			entity.State = rec.State + " " + unit
		}
		if area, ok := rec.Attributes["area_name"].(string); ok && area != "" {
			entity.AreaName = area
		}
		entities[rec.EntityID] = entity
	}
	return entities, nil
}

// Available checks if the Home Assistant API is reachable.
func (c *Client) Available(ctx context.Context) (bool, error) {
	req, err := c.newRequest(ctx, "GET", "/api/", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
