// Package client is the editor's HTTP client for the hearthd backend:
// document fetch and save, the entity catalog, and nothing else. Saves are
// whole-document replaces, never diffs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/settings"
)

// serverOwnedPaths are subtrees the backend maintains itself. They are
// stripped from outgoing saves — from a copy, never from the live tree —
// so a save can never clobber server-side state.
var serverOwnedPaths = []string{
	"runtime",
	"system.versions",
	"entities",
}

// RejectedError is a structural rejection from the backend: the document
// was received but refused, with the backend's message verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "save rejected: " + e.Message
}

// SaveResult reports a successful save.
type SaveResult struct {
	RestartRequired bool
}

// Client talks to a hearthd backend.
type Client struct {
	base string
	http *http.Client
}

// New creates a Client for the backend at base, e.g. "http://127.0.0.1:8080".
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

// saveResponse is the backend's PUT reply for both documents.
type saveResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	RestartRequired bool   `json:"restart_required,omitempty"`
}

// FetchSettings retrieves the full settings document.
func (c *Client) FetchSettings(ctx context.Context) (settings.Tree, error) {
	return c.fetchDocument(ctx, "/v1/settings")
}

// FetchAuxiliary retrieves the household document.
func (c *Client) FetchAuxiliary(ctx context.Context) (settings.Tree, error) {
	return c.fetchDocument(ctx, "/v1/household")
}

func (c *Client) fetchDocument(ctx context.Context, path string) (settings.Tree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}
	var tree settings.Tree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return tree, nil
}

// SaveSettings persists the settings document: deep-copies the tree,
// strips the server-owned subtrees from the copy, and issues one PUT with
// the remainder. Neither a transport failure nor a rejection touches the
// tree the caller passed in.
func (c *Client) SaveSettings(ctx context.Context, tree settings.Tree) (SaveResult, error) {
	doc := settings.Clone(tree)
	for _, p := range serverOwnedPaths {
		settings.Delete(doc, p)
	}
	return c.putDocument(ctx, "/v1/settings", settings.Tree{"settings": doc})
}

// SaveAuxiliary persists the household document with its own PUT.
func (c *Client) SaveAuxiliary(ctx context.Context, tree settings.Tree) (SaveResult, error) {
	return c.putDocument(ctx, "/v1/household", settings.Tree{"household": settings.Clone(tree)})
}

func (c *Client) putDocument(ctx context.Context, path string, body settings.Tree) (SaveResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return SaveResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return SaveResult{}, fmt.Errorf("save %s: unexpected status %d: %s", path, resp.StatusCode, raw)
	}

	var sr saveResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", path, err)
	}
	if !sr.Success {
		return SaveResult{}, &RejectedError{Message: sr.Message}
	}
	return SaveResult{RestartRequired: sr.RestartRequired}, nil
}

// FetchCatalog retrieves the flat entity list. It satisfies
// entity.CatalogSource.
func (c *Client) FetchCatalog(ctx context.Context) ([]entity.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/entities", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Entities []entity.Record `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return body.Entities, nil
}

// EventsURL returns the websocket address of the backend's event stream.
func (c *Client) EventsURL() string {
	url := c.base + "/v1/events"
	if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	return url
}
