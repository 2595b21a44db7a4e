package bps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(srvURL string) *Client {
	c := New("session=abc")
	c.BaseURL = srvURL + "/getwilayah"
	c.PeriodeURL = srvURL + "/getperiode"
	c.Delay = time.Millisecond
	return c
}

func TestFetchWilayah(t *testing.T) {
	var gotCookie, gotLevel, gotParent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotLevel = r.URL.Query().Get("level")
		gotParent = r.URL.Query().Get("parent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"kode_bps": "1101", "nama_bps": "SIMEULUE"}]`))
	}))
	defer srv.Close()

	payload, units, err := testClient(srv.URL).FetchWilayah(context.Background(), LevelKabupaten, "11", "2025_1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotCookie != "session=abc" {
		t.Fatalf("cookie header not sent, got %q", gotCookie)
	}
	if gotLevel != "kabupaten" || gotParent != "11" {
		t.Fatalf("bad query: level=%q parent=%q", gotLevel, gotParent)
	}
	if len(units) != 1 || units[0].KodeBPS != "1101" {
		t.Fatalf("unexpected units: %+v", units)
	}
	if string(payload) != `[{"kode_bps": "1101", "nama_bps": "SIMEULUE"}]` {
		t.Fatalf("payload is not the exact response bytes: %q", payload)
	}
}

func TestLatestPeriodeIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"periode": "2025_1"}, {"periode": "2024_2"}]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	first, err := c.LatestPeriode(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := c.LatestPeriode(context.Background())
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first != "2025_1" || first != second {
		t.Fatalf("resolution not idempotent: %q then %q", first, second)
	}
}

func TestLatestPeriodeEmptyCatalogue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).LatestPeriode(context.Background())
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError for empty catalogue, got %v", err)
	}
}

func TestAuthErrorOnLoginHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>please log in</body></html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ListPeriodes(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for HTML response, got %v", err)
	}
}

func TestAuthErrorOnRedirect(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ListPeriodes(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for redirect, got %v", err)
	}
	// Auth failures must not be retried.
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestTransportErrorRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`["2025_1"]`))
	}))
	defer srv.Close()

	periodes, err := testClient(srv.URL).ListPeriodes(context.Background())
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if len(periodes) != 1 || periodes[0] != "2025_1" {
		t.Fatalf("unexpected periodes: %v", periodes)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestTransportErrorExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ListPeriodes(context.Background())
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transport.Status != http.StatusServiceUnavailable {
		t.Fatalf("status not surfaced: %+v", transport)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected MaxRetries attempts, got %d", calls)
	}
}
