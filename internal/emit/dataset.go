package emit

import (
	"fmt"

	"wilayah/internal/bps"
	"wilayah/internal/rawstore"
)

// Dataset is one periode's units re-parsed from the raw store, with the
// province rollup rebuilt by walking levels root-first.
type Dataset struct {
	Periode string
	Levels  []bps.Level
	Units   map[bps.Level][]bps.Unit
	// ProvinceOf maps a unit code to its provinsi code.
	ProvinceOf map[string]string
}

// Count returns the number of units at a level.
func (d *Dataset) Count(level bps.Level) int { return len(d.Units[level]) }

// All returns every unit in hierarchy order.
func (d *Dataset) All() []bps.Unit {
	var all []bps.Unit
	for _, level := range d.Levels {
		all = append(all, d.Units[level]...)
	}
	return all
}

// Collect reads everything the raw store holds for a periode. Levels with no
// stored payloads are skipped; a periode with nothing stored at all is an
// error.
func Collect(store rawstore.Store, periode string) (*Dataset, error) {
	d := &Dataset{
		Periode:    periode,
		Units:      make(map[bps.Level][]bps.Unit),
		ProvinceOf: make(map[string]string),
	}
	for _, level := range bps.LevelOrder {
		parents, err := store.Parents(periode, level)
		if err != nil {
			return nil, fmt.Errorf("list raw payloads for level %s: %w", level, err)
		}
		if len(parents) == 0 {
			continue
		}
		// Duplicate codes can appear when the upstream repeats a unit
		// under two parents; keep the first occurrence, like the crawl.
		seen := make(map[string]bool)
		var units []bps.Unit
		for _, parent := range parents {
			payload, err := store.Load(periode, level, parent)
			if err != nil {
				return nil, fmt.Errorf("read raw payload level=%s parent=%s: %w", level, parent, err)
			}
			parsed, err := bps.ParseUnits(payload, level, parent)
			if err != nil {
				return nil, err
			}
			for _, u := range parsed {
				if seen[u.KodeBPS] {
					continue
				}
				seen[u.KodeBPS] = true
				units = append(units, u)
			}
		}
		for _, u := range units {
			if level == bps.LevelProvinsi {
				d.ProvinceOf[u.KodeBPS] = u.KodeBPS
				continue
			}
			if prov, ok := d.ProvinceOf[u.ParentKode]; ok {
				d.ProvinceOf[u.KodeBPS] = prov
			} else {
				// Parent level was not fetched; fall back to the parent
				// code itself so grouping stays stable.
				d.ProvinceOf[u.KodeBPS] = u.ParentKode
			}
		}
		d.Units[level] = units
		d.Levels = append(d.Levels, level)
	}
	if len(d.Levels) == 0 {
		return nil, fmt.Errorf("no raw payloads stored for periode %s", periode)
	}
	return d, nil
}
