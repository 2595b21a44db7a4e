// Package wilayahsdk is a minimal client for the wilayah reference API
// served by `wilayah serve`.
package wilayahsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to one wilayah API server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the base path,
// e.g. "http://127.0.0.1:8080/v0".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Unit mirrors the API unit model.
type Unit struct {
	Periode      string `json:"periode_merge"`
	Level        string `json:"level"`
	KodeBPS      string `json:"kode_bps"`
	NamaBPS      string `json:"nama_bps"`
	KodeDagri    string `json:"kode_dagri,omitempty"`
	NamaDagri    string `json:"nama_dagri,omitempty"`
	ParentKode   string `json:"parent_kode_bps,omitempty"`
	ProvinceKode string `json:"province_kode_bps,omitempty"`
	FetchedAt    string `json:"fetched_at"`
}

// Import mirrors the API import model.
type Import struct {
	RunID      string `json:"run_id"`
	Periode    string `json:"periode_merge"`
	ImportedAt string `json:"imported_at"`
	Units      int    `json:"units"`
}

// APIError is the server's error envelope.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Msg)
}

// ListImports lists the periods loaded into the workspace database.
func (c *Client) ListImports(ctx context.Context) ([]Import, error) {
	var out struct {
		Imports []Import `json:"imports"`
	}
	if err := c.get(ctx, "/imports", &out); err != nil {
		return nil, err
	}
	return out.Imports, nil
}

// GetUnit looks a unit up by code.
func (c *Client) GetUnit(ctx context.Context, periode, kode string) (Unit, error) {
	var out Unit
	path := fmt.Sprintf("/periods/%s/units/%s", url.PathEscape(periode), url.PathEscape(kode))
	if err := c.get(ctx, path, &out); err != nil {
		return Unit{}, err
	}
	return out, nil
}

// Children lists the units directly under a unit.
func (c *Client) Children(ctx context.Context, periode, kode string) ([]Unit, error) {
	var out struct {
		Units []Unit `json:"units"`
	}
	path := fmt.Sprintf("/periods/%s/units/%s/children", url.PathEscape(periode), url.PathEscape(kode))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

// Level lists every unit at a level.
func (c *Client) Level(ctx context.Context, periode, level string) ([]Unit, error) {
	var out struct {
		Units []Unit `json:"units"`
	}
	path := fmt.Sprintf("/periods/%s/levels/%s", url.PathEscape(periode), url.PathEscape(level))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

// Counts reports unit counts per level for a period.
func (c *Client) Counts(ctx context.Context, periode string) (map[string]int, error) {
	var out struct {
		Counts map[string]int `json:"counts"`
	}
	path := fmt.Sprintf("/periods/%s/counts", url.PathEscape(periode))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Counts, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
			envelope.Error.Status = resp.StatusCode
			return &envelope.Error
		}
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
