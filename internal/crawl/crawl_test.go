package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"wilayah/internal/bps"
)

// fakeFetcher serves a canned hierarchy and instruments concurrency.
type fakeFetcher struct {
	children map[string][]string // parent code -> child codes
	fail     map[string]error    // "level/parent" -> error

	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func taskKey(level bps.Level, parent string) string {
	return fmt.Sprintf("%s/%s", level, parent)
}

func (f *fakeFetcher) FetchWilayah(ctx context.Context, level bps.Level, parent, periode string) ([]byte, []bps.Unit, error) {
	f.mu.Lock()
	f.calls = append(f.calls, taskKey(level, parent))
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if err, ok := f.fail[taskKey(level, parent)]; ok {
		return nil, nil, err
	}
	var units []bps.Unit
	type wire struct {
		Kode string `json:"kode_bps"`
		Nama string `json:"nama_bps"`
	}
	var records []wire
	for _, kode := range f.children[parent] {
		units = append(units, bps.Unit{Level: level, KodeBPS: kode, NamaBPS: "UNIT " + kode, ParentKode: parent})
		records = append(records, wire{Kode: kode, Nama: "UNIT " + kode})
	}
	payload, _ := json.Marshal(records)
	return payload, units, nil
}

// memStore records saves keyed by level/parent.
type memStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func newMemStore() *memStore { return &memStore{payloads: map[string][]byte{}} }

func (s *memStore) Save(periode string, level bps.Level, parent string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[taskKey(level, parent)] = payload
	return nil
}

// twoByTwo builds the 2 provinces x 2 regencies x 1 district x 1 village
// hierarchy: 2+4+4+4 = 14 units.
func twoByTwo() map[string][]string {
	children := map[string][]string{
		"": {"11", "12"},
	}
	for _, prov := range []string{"11", "12"} {
		kabs := []string{prov + "01", prov + "02"}
		children[prov] = kabs
		for _, kab := range kabs {
			kec := kab + "0"
			children[kab] = []string{kec}
			children[kec] = []string{kec + "1"}
		}
	}
	return children
}

func newCrawler(f *fakeFetcher, s *memStore, workers int, policy ErrorPolicy) *Crawler {
	return &Crawler{Fetcher: f, Store: s, Workers: workers, OnError: policy}
}

func TestRunFullHierarchy(t *testing.T) {
	fetcher := &fakeFetcher{children: twoByTwo()}
	store := newMemStore()
	result, err := newCrawler(fetcher, store, 4, PolicyContinue).Run(context.Background(), "2025_1", bps.LevelOrder)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantCounts := map[bps.Level]int{
		bps.LevelProvinsi:  2,
		bps.LevelKabupaten: 4,
		bps.LevelKecamatan: 4,
		bps.LevelDesa:      4,
	}
	total := 0
	for level, want := range wantCounts {
		if got := result.Count(level); got != want {
			t.Fatalf("level %s: got %d units, want %d", level, got, want)
		}
		total += result.Count(level)
	}
	if total != 14 {
		t.Fatalf("expected 14 units total, got %d", total)
	}
	// One stored payload per task: 1 + 2 + 4 + 4.
	if len(store.payloads) != 11 {
		t.Fatalf("expected 11 stored payloads, got %d", len(store.payloads))
	}
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}
}

func TestRunReferentialIntegrity(t *testing.T) {
	fetcher := &fakeFetcher{children: twoByTwo()}
	store := newMemStore()
	result, err := newCrawler(fetcher, store, 3, PolicyContinue).Run(context.Background(), "2025_1", bps.LevelOrder)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 1; i < len(bps.LevelOrder); i++ {
		parentCodes := map[string]bool{}
		for _, u := range result.Units[bps.LevelOrder[i-1]] {
			parentCodes[u.KodeBPS] = true
		}
		for _, u := range result.Units[bps.LevelOrder[i]] {
			if !parentCodes[u.ParentKode] {
				t.Fatalf("unit %s at level %s has unknown parent %s", u.KodeBPS, u.Level, u.ParentKode)
			}
		}
	}
}

func TestRunConcurrencyLimit(t *testing.T) {
	const workers = 2
	fetcher := &fakeFetcher{children: twoByTwo(), delay: 10 * time.Millisecond}
	store := newMemStore()
	if _, err := newCrawler(fetcher, store, workers, PolicyContinue).Run(context.Background(), "2025_1", bps.LevelOrder); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fetcher.maxInFlight > workers {
		t.Fatalf("concurrency limit exceeded: %d in flight with limit %d", fetcher.maxInFlight, workers)
	}
}

func TestRunDispatchOrder(t *testing.T) {
	fetcher := &fakeFetcher{children: twoByTwo()}
	store := newMemStore()
	// One worker makes dispatch order observable as call order.
	if _, err := newCrawler(fetcher, store, 1, PolicyContinue).Run(context.Background(), "2025_1", bps.LevelOrder); err != nil {
		t.Fatalf("run: %v", err)
	}
	var kabCalls []string
	for _, call := range fetcher.calls {
		if strings.HasPrefix(call, "kabupaten/") {
			kabCalls = append(kabCalls, call)
		}
	}
	want := []string{"kabupaten/11", "kabupaten/12"}
	if len(kabCalls) != len(want) {
		t.Fatalf("kabupaten calls: %v", kabCalls)
	}
	for i := range want {
		if kabCalls[i] != want[i] {
			t.Fatalf("dispatch order does not follow discovery order: %v", kabCalls)
		}
	}
}

func TestRunPartialFailureContinues(t *testing.T) {
	fetcher := &fakeFetcher{
		children: twoByTwo(),
		fail: map[string]error{
			"kabupaten/11": &bps.TransportError{URL: "x", Status: 502},
		},
	}
	store := newMemStore()
	result, err := newCrawler(fetcher, store, 4, PolicyContinue).Run(context.Background(), "2025_1", bps.LevelOrder)
	if err != nil {
		t.Fatalf("continue policy must not fail the run: %v", err)
	}
	if result.Count(bps.LevelProvinsi) != 2 {
		t.Fatalf("provinces: %d", result.Count(bps.LevelProvinsi))
	}
	// Province 11 contributed no regencies; province 12's two survive.
	if result.Count(bps.LevelKabupaten) != 2 {
		t.Fatalf("expected 2 kabupaten after one failed parent, got %d", result.Count(bps.LevelKabupaten))
	}
	for _, u := range result.Units[bps.LevelKabupaten] {
		if u.ParentKode != "12" {
			t.Fatalf("unexpected kabupaten from failed parent: %+v", u)
		}
	}
	// Downstream levels only cover the surviving branch.
	if result.Count(bps.LevelKecamatan) != 2 || result.Count(bps.LevelDesa) != 2 {
		t.Fatalf("downstream counts: kecamatan=%d desa=%d", result.Count(bps.LevelKecamatan), result.Count(bps.LevelDesa))
	}
	if result.FailureCount(bps.LevelKabupaten) != 1 || len(result.Failures) != 1 {
		t.Fatalf("failure bookkeeping: %v", result.Failures)
	}
	// No tasks were created for the failed parent's children.
	for _, call := range fetcher.calls {
		if strings.HasPrefix(call, "kecamatan/1101") || strings.HasPrefix(call, "kecamatan/1102") {
			t.Fatalf("tasks created under failed parent: %v", fetcher.calls)
		}
	}
}

func TestRunAbortPolicy(t *testing.T) {
	fetcher := &fakeFetcher{
		children: twoByTwo(),
		fail: map[string]error{
			"kabupaten/11": &bps.TransportError{URL: "x", Status: 502},
		},
	}
	store := newMemStore()
	result, err := newCrawler(fetcher, store, 1, PolicyAbort).Run(context.Background(), "2025_1", bps.LevelOrder)
	if err == nil {
		t.Fatal("abort policy must fail the run")
	}
	if len(result.Failures) == 0 {
		t.Fatal("failures not recorded")
	}
	// The provinsi level had settled before the failure and stays usable.
	if result.Count(bps.LevelProvinsi) != 2 {
		t.Fatalf("provinsi results lost: %d", result.Count(bps.LevelProvinsi))
	}
}

func TestRunAuthErrorIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{
		children: twoByTwo(),
		fail: map[string]error{
			"provinsi/": &bps.AuthError{URL: "x", Reason: "cookie expired"},
		},
	}
	store := newMemStore()
	_, err := newCrawler(fetcher, store, 4, PolicyContinue).Run(context.Background(), "2025_1", bps.LevelOrder)
	var authErr *bps.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError to abort the run even under continue, got %v", err)
	}
}

func TestRunDeduplicatesCodes(t *testing.T) {
	fetcher := &fakeFetcher{children: map[string][]string{
		"":   {"11", "12"},
		"11": {"1101"},
		"12": {"1101"}, // upstream repeats a unit under two parents
	}}
	store := newMemStore()
	result, err := newCrawler(fetcher, store, 2, PolicyContinue).Run(context.Background(), "2025_1",
		[]bps.Level{bps.LevelProvinsi, bps.LevelKabupaten})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Count(bps.LevelKabupaten) != 1 {
		t.Fatalf("duplicate kode_bps not dropped: %+v", result.Units[bps.LevelKabupaten])
	}
}

func TestParsePolicy(t *testing.T) {
	if _, err := ParsePolicy("continue"); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if _, err := ParsePolicy("abort"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
