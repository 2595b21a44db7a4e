package bps

import (
	"errors"
	"testing"
)

func TestParseUnits(t *testing.T) {
	payload := []byte(`[
		{"kode_bps": "11", "nama_bps": "ACEH", "kode_dagri": "11", "nama_dagri": "Aceh"},
		{"kode_bps": 12, "nama_bps": " SUMATERA UTARA ", "kode_dagri": 12, "nama_dagri": "Sumatera Utara"},
		{"kode_bps": "0", "nama_bps": "placeholder"},
		{"kode_bps": "", "nama_bps": "empty"}
	]`)
	units, err := ParseUnits(payload, LevelProvinsi, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].KodeBPS != "11" || units[0].NamaBPS != "ACEH" {
		t.Fatalf("unexpected first unit: %+v", units[0])
	}
	if units[1].KodeBPS != "12" {
		t.Fatalf("numeric kode_bps not coerced: %+v", units[1])
	}
	if units[1].NamaBPS != "SUMATERA UTARA" {
		t.Fatalf("name not trimmed: %q", units[1].NamaBPS)
	}
	if units[0].Level != LevelProvinsi || units[0].ParentKode != "" {
		t.Fatalf("level/parent not attached: %+v", units[0])
	}
}

func TestParseUnitsParent(t *testing.T) {
	payload := []byte(`[{"kode_bps": "1101", "nama_bps": "SIMEULUE"}]`)
	units, err := ParseUnits(payload, LevelKabupaten, "11")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if units[0].ParentKode != "11" {
		t.Fatalf("parent not set: %+v", units[0])
	}
}

func TestParseUnitsMalformed(t *testing.T) {
	for _, payload := range []string{
		`{"not": "a list"}`,
		`<html><body>login</body></html>`,
		`[{"kode_bps": {}}]`,
	} {
		_, err := ParseUnits([]byte(payload), LevelProvinsi, "")
		var malformed *MalformedError
		if !errors.As(err, &malformed) {
			t.Fatalf("payload %q: expected MalformedError, got %v", payload, err)
		}
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels("kabupaten, provinsi")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(levels) != 2 || levels[0] != LevelProvinsi || levels[1] != LevelKabupaten {
		t.Fatalf("hierarchy order not restored: %v", levels)
	}
	if _, err := ParseLevels("provinsi,planet"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := ParseLevels(" , "); err == nil {
		t.Fatal("expected error for empty level list")
	}
}
