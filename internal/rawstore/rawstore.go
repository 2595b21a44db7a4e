// Package rawstore persists raw API payloads on disk, one file per
// (periode, level, parent) request. Files hold the exact upstream bytes so
// re-runs against a stable upstream are byte-identical.
package rawstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wilayah/internal/bps"
)

// rootName is the filename used for the provinsi request, which has no
// parent code.
const rootName = "root"

// Store writes payloads under Dir/<periode>/<level>/<parent>.json. Distinct
// keys never touch the same path, so concurrent Save calls need no locking
// beyond the filesystem's.
type Store struct {
	Dir string
}

// New returns a store rooted at dir (conventionally data/raw/bps).
func New(dir string) Store {
	return Store{Dir: dir}
}

// PeriodeDir returns the directory holding one periode's payloads.
func (s Store) PeriodeDir(periode string) string {
	return filepath.Join(s.Dir, sanitize(periode))
}

func (s Store) payloadPath(periode string, level bps.Level, parent string) string {
	name := parent
	if name == "" {
		name = rootName
	}
	return filepath.Join(s.PeriodeDir(periode), level.String(), sanitize(name)+".json")
}

// Save persists one response payload.
func (s Store) Save(periode string, level bps.Level, parent string, payload []byte) error {
	path := s.payloadPath(periode, level, parent)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write raw payload: %w", err)
	}
	return nil
}

// Load reads back one payload.
func (s Store) Load(periode string, level bps.Level, parent string) ([]byte, error) {
	return os.ReadFile(s.payloadPath(periode, level, parent))
}

// Parents lists the parent codes that have a stored payload for the given
// level, sorted. The provinsi root file maps back to the empty parent.
func (s Store) Parents(periode string, level bps.Level) ([]string, error) {
	dir := filepath.Join(s.PeriodeDir(periode), level.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var parents []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == rootName {
			name = ""
		}
		parents = append(parents, name)
	}
	sort.Strings(parents)
	return parents, nil
}

// Periodes lists the periode directories present in the store, sorted.
func (s Store) Periodes() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var periodes []string
	for _, e := range entries {
		if e.IsDir() {
			periodes = append(periodes, e.Name())
		}
	}
	sort.Strings(periodes)
	return periodes, nil
}

// sanitize keeps periode values and codes filesystem-safe; the upstream uses
// slashes in some periode identifiers.
func sanitize(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)
}
