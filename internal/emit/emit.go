// Package emit turns stored raw payloads into the processed outputs: one CSV
// per level, a manifest, and a SQL dump. It runs single-threaded after all
// fetches settle.
package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jszwec/csvutil"

	"wilayah/internal/bps"
	"wilayah/internal/rawstore"
)

// Row is one normalized CSV record.
type Row struct {
	Level        string `csv:"level" json:"level"`
	KodeBPS      string `csv:"kode_bps" json:"kode_bps"`
	NamaBPS      string `csv:"nama_bps" json:"nama_bps"`
	KodeDagri    string `csv:"kode_dagri" json:"kode_dagri"`
	NamaDagri    string `csv:"nama_dagri" json:"nama_dagri"`
	ParentKode   string `csv:"parent_kode_bps" json:"parent_kode_bps"`
	Periode      string `csv:"periode_merge" json:"periode_merge"`
	FetchedAt    string `csv:"fetched_at" json:"fetched_at"`
	ProvinceKode string `csv:"province_kode_bps" json:"province_kode_bps"`
}

// Manifest describes one emitted dataset.
type Manifest struct {
	RunID     string         `json:"run_id"`
	Periode   string         `json:"periode_merge"`
	FetchedAt string         `json:"fetched_at"`
	Levels    []string       `json:"levels"`
	Counts    map[string]int `json:"counts"`
	BaseURL   string         `json:"base_url"`
}

// Summary reports what Emit wrote.
type Summary struct {
	Manifest     Manifest
	ProcessedDir string
	SQLPath      string
}

// Emitter writes processed outputs for one periode. All fields are set
// before use; Now and NewRunID exist for tests.
type Emitter struct {
	Raw          rawstore.Store
	ProcessedDir string
	SQLDir       string
	SQLFilename  string
	BaseURL      string
	Now          func() time.Time
	NewRunID     func() string
}

func (e Emitter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Emitter) runID() string {
	if e.NewRunID != nil {
		return e.NewRunID()
	}
	return uuid.NewString()
}

// Emit reads the raw store and writes CSVs, manifest.json, and the SQL dump.
func (e Emitter) Emit(periode string) (*Summary, error) {
	dataset, err := Collect(e.Raw, periode)
	if err != nil {
		return nil, err
	}
	fetchedAt := e.now().UTC().Truncate(time.Second).Format(time.RFC3339)

	processedDir := filepath.Join(e.ProcessedDir, safeName(periode))
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create processed dir: %w", err)
	}

	counts := make(map[string]int, len(dataset.Levels))
	levelNames := make([]string, 0, len(dataset.Levels))
	for _, level := range dataset.Levels {
		rows := e.rows(dataset, level, fetchedAt)
		data, err := csvutil.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode %s.csv: %w", level, err)
		}
		path := filepath.Join(processedDir, level.String()+".csv")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		counts[level.String()] = len(rows)
		levelNames = append(levelNames, level.String())
	}

	manifest := Manifest{
		RunID:     e.runID(),
		Periode:   periode,
		FetchedAt: fetchedAt,
		Levels:    levelNames,
		Counts:    counts,
		BaseURL:   e.BaseURL,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(processedDir, "manifest.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := os.MkdirAll(e.SQLDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sql dir: %w", err)
	}
	sqlName := e.SQLFilename
	if sqlName == "" {
		sqlName = fmt.Sprintf("bps_wilayah_%s.sql", safeName(periode))
	}
	sqlPath := filepath.Join(e.SQLDir, sqlName)
	if err := os.WriteFile(sqlPath, []byte(renderSQL(dataset, fetchedAt)), 0o644); err != nil {
		return nil, fmt.Errorf("write sql dump: %w", err)
	}

	return &Summary{Manifest: manifest, ProcessedDir: processedDir, SQLPath: sqlPath}, nil
}

func (e Emitter) rows(d *Dataset, level bps.Level, fetchedAt string) []Row {
	units := d.Units[level]
	rows := make([]Row, 0, len(units))
	for _, u := range units {
		rows = append(rows, Row{
			Level:        u.Level.String(),
			KodeBPS:      u.KodeBPS,
			NamaBPS:      u.NamaBPS,
			KodeDagri:    u.KodeDagri,
			NamaDagri:    u.NamaDagri,
			ParentKode:   u.ParentKode,
			Periode:      d.Periode,
			FetchedAt:    fetchedAt,
			ProvinceKode: d.ProvinceOf[u.KodeBPS],
		})
	}
	return rows
}

func safeName(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-").Replace(s)
}
