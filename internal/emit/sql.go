package emit

import (
	"fmt"
	"sort"
	"strings"

	"wilayah/internal/bps"
)

var sqlColumns = []string{
	"kode_bps",
	"nama_bps",
	"kode_dagri",
	"nama_dagri",
	"level",
	"parent_kode_bps",
	"periode_merge",
	"fetched_at",
}

// renderSQL produces the bps_wilayah dump: schema plus one INSERT block per
// province, provinces and rows in stable order so re-runs diff cleanly.
func renderSQL(d *Dataset, fetchedAt string) string {
	var b strings.Builder
	b.WriteString("/*\n")
	b.WriteString("BPS wilayah dump\n")
	b.WriteString("Source : https://sig.bps.go.id/\n")
	fmt.Fprintf(&b, "Periode: %s\n", d.Periode)
	fmt.Fprintf(&b, "Fetched: %s\n", fetchedAt)
	fmt.Fprintf(&b, "Levels : %s\n", joinLevels(d.Levels))
	b.WriteString("*/\n")
	b.WriteString("--\n-- Table structure for table bps_wilayah\n--\n\n")
	b.WriteString("DROP TABLE IF EXISTS bps_wilayah;\n")
	b.WriteString("CREATE TABLE IF NOT EXISTS bps_wilayah (\n")
	b.WriteString("    kode_bps VARCHAR(16) NOT NULL,\n")
	b.WriteString("    nama_bps VARCHAR(200) NOT NULL,\n")
	b.WriteString("    kode_dagri VARCHAR(16),\n")
	b.WriteString("    nama_dagri VARCHAR(200),\n")
	b.WriteString("    level VARCHAR(16) NOT NULL,\n")
	b.WriteString("    parent_kode_bps VARCHAR(16),\n")
	b.WriteString("    periode_merge VARCHAR(32) NOT NULL,\n")
	b.WriteString("    fetched_at VARCHAR(32) NOT NULL,\n")
	b.WriteString("    PRIMARY KEY (level, kode_bps)\n")
	b.WriteString(") ENGINE=MyISAM;\n")
	b.WriteString("CREATE INDEX bps_wilayah_parent_idx ON bps_wilayah (parent_kode_bps);\n\n")
	b.WriteString("--\n-- Dumping data for table bps_wilayah\n--\n\n")

	byProvince := make(map[string][]bps.Unit)
	provinceNames := make(map[string]string)
	for _, u := range d.All() {
		prov := d.ProvinceOf[u.KodeBPS]
		if prov == "" {
			prov = u.KodeBPS
		}
		byProvince[prov] = append(byProvince[prov], u)
		if u.Level == bps.LevelProvinsi {
			provinceNames[prov] = u.NamaBPS
		}
	}
	provinces := make([]string, 0, len(byProvince))
	for prov := range byProvince {
		provinces = append(provinces, prov)
	}
	sort.Strings(provinces)

	for _, prov := range provinces {
		units := byProvince[prov]
		sort.Slice(units, func(i, j int) bool {
			if units[i].Level.Rank() != units[j].Level.Rank() {
				return units[i].Level.Rank() < units[j].Level.Rank()
			}
			return units[i].KodeBPS < units[j].KodeBPS
		})
		name := provinceNames[prov]
		if name == "" {
			name = prov
		}
		fmt.Fprintf(&b, "-- Provinsi %s\n", name)
		fmt.Fprintf(&b, "INSERT INTO bps_wilayah (%s)\nVALUES\n", strings.Join(sqlColumns, ", "))
		for i, u := range units {
			values := []string{
				sqlEscape(u.KodeBPS),
				sqlEscape(u.NamaBPS),
				sqlEscape(u.KodeDagri),
				sqlEscape(u.NamaDagri),
				sqlEscape(u.Level.String()),
				sqlEscape(u.ParentKode),
				sqlEscape(d.Periode),
				sqlEscape(fetchedAt),
			}
			terminator := ","
			if i == len(units)-1 {
				terminator = ";"
			}
			fmt.Fprintf(&b, "(%s)%s\n", strings.Join(values, ", "), terminator)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// sqlEscape renders a value as a SQL literal, doubling single quotes. Empty
// values become NULL.
func sqlEscape(v string) string {
	if v == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func joinLevels(levels []bps.Level) string {
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.String()
	}
	return strings.Join(names, ", ")
}
