package bps

import (
	"fmt"
	"sort"
	"strings"
)

// Level is one tier of the BPS administrative hierarchy, named the way the
// bridging API names them.
type Level string

const (
	LevelProvinsi  Level = "provinsi"
	LevelKabupaten Level = "kabupaten"
	LevelKecamatan Level = "kecamatan"
	LevelDesa      Level = "desa"
)

// LevelOrder lists all levels from root to leaf. Each level's parent codes
// come from the level immediately before it.
var LevelOrder = []Level{LevelProvinsi, LevelKabupaten, LevelKecamatan, LevelDesa}

func (l Level) String() string { return string(l) }

// Rank returns the position of l in LevelOrder, or -1 for unknown levels.
func (l Level) Rank() int {
	for i, known := range LevelOrder {
		if l == known {
			return i
		}
	}
	return -1
}

// ParseLevels parses a comma-separated level list. The result keeps hierarchy
// order regardless of caller order, since traversal is only meaningful
// root-first.
func ParseLevels(s string) ([]Level, error) {
	var levels []Level
	seen := map[Level]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		l := Level(name)
		if l.Rank() < 0 {
			return nil, fmt.Errorf("unsupported level %q (valid: provinsi, kabupaten, kecamatan, desa)", name)
		}
		if !seen[l] {
			levels = append(levels, l)
			seen[l] = true
		}
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("no levels supplied")
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rank() < levels[j].Rank() })
	return levels, nil
}
