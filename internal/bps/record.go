package bps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Unit is one administrative unit as discovered during a crawl. Immutable
// once parsed; ParentKode is empty only at the provinsi level.
type Unit struct {
	Level      Level  `json:"level"`
	KodeBPS    string `json:"kode_bps"`
	NamaBPS    string `json:"nama_bps"`
	KodeDagri  string `json:"kode_dagri"`
	NamaDagri  string `json:"nama_dagri"`
	ParentKode string `json:"parent_kode_bps,omitempty"`
}

// scalar accepts a JSON string or number; the upstream is inconsistent about
// which one it uses for codes.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = scalar(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = scalar(n.String())
	return nil
}

// wilayahRecord is the wire shape of one getwilayah list entry.
type wilayahRecord struct {
	KodeBPS   scalar `json:"kode_bps"`
	NamaBPS   string `json:"nama_bps"`
	KodeDagri scalar `json:"kode_dagri"`
	NamaDagri string `json:"nama_dagri"`
}

// ParseUnits decodes one raw getwilayah payload into units for the given
// level and parent. Records with an empty or zero kode_bps are dropped (the
// upstream pads some lists with placeholder rows). A payload that is not a
// JSON array of records fails with MalformedError.
func ParseUnits(payload []byte, level Level, parent string) ([]Unit, error) {
	var records []wilayahRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, &MalformedError{Err: fmt.Errorf("level=%s parent=%s: %w", level, parentLabel(parent), err)}
	}
	units := make([]Unit, 0, len(records))
	for _, rec := range records {
		kode := strings.TrimSpace(string(rec.KodeBPS))
		if kode == "" || kode == "0" {
			continue
		}
		units = append(units, Unit{
			Level:      level,
			KodeBPS:    kode,
			NamaBPS:    strings.TrimSpace(rec.NamaBPS),
			KodeDagri:  strings.TrimSpace(string(rec.KodeDagri)),
			NamaDagri:  strings.TrimSpace(rec.NamaDagri),
			ParentKode: parent,
		})
	}
	return units, nil
}

func parentLabel(parent string) string {
	if parent == "" {
		return "-"
	}
	return parent
}
