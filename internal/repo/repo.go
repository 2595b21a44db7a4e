package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wilayah/internal/domain"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Repo wraps queries over the workspace database.
type Repo struct {
	DB *sql.DB
}

const unitColumns = `periode_merge, level, kode_bps, nama_bps, kode_dagri, nama_dagri, parent_kode_bps, province_kode_bps, fetched_at`

// ImportUnits replaces one periode's rows with the given units and records
// the import. Re-loading a periode is idempotent.
func (r Repo) ImportUnits(ctx context.Context, imp domain.Import, units []domain.Unit) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bps_wilayah WHERE periode_merge = ?`, imp.Periode); err != nil {
		return fmt.Errorf("clear periode %s: %w", imp.Periode, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bps_wilayah(`+unitColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, u := range units {
		if _, err := stmt.ExecContext(ctx, u.Periode, u.Level, u.KodeBPS, u.NamaBPS,
			nullable(u.KodeDagri), nullable(u.NamaDagri), nullable(u.ParentKode), nullable(u.ProvinceKode), u.FetchedAt); err != nil {
			return fmt.Errorf("insert unit %s/%s: %w", u.Level, u.KodeBPS, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO imports(run_id, periode_merge, imported_at, units) VALUES (?,?,?,?)`,
		imp.RunID, imp.Periode, imp.ImportedAt, len(units)); err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return tx.Commit()
}

// ListImports returns recorded imports, newest first.
func (r Repo) ListImports(ctx context.Context) ([]domain.Import, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT run_id, periode_merge, imported_at, units FROM imports ORDER BY imported_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var imports []domain.Import
	for rows.Next() {
		var imp domain.Import
		if err := rows.Scan(&imp.RunID, &imp.Periode, &imp.ImportedAt, &imp.Units); err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// GetUnit looks a unit up by periode and code.
func (r Repo) GetUnit(ctx context.Context, periode, kode string) (domain.Unit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM bps_wilayah WHERE periode_merge = ? AND kode_bps = ?`, periode, kode)
	return scanUnit(row)
}

// Children returns the units whose parent is the given code, sorted by code.
func (r Repo) Children(ctx context.Context, periode, kode string) ([]domain.Unit, error) {
	return r.queryUnits(ctx, `SELECT `+unitColumns+` FROM bps_wilayah WHERE periode_merge = ? AND parent_kode_bps = ? ORDER BY kode_bps`, periode, kode)
}

// ListLevel returns all units at a level, sorted by code.
func (r Repo) ListLevel(ctx context.Context, periode, level string) ([]domain.Unit, error) {
	return r.queryUnits(ctx, `SELECT `+unitColumns+` FROM bps_wilayah WHERE periode_merge = ? AND level = ? ORDER BY kode_bps`, periode, level)
}

// CountByLevel reports how many units each level holds for a periode.
func (r Repo) CountByLevel(ctx context.Context, periode string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT level, COUNT(*) FROM bps_wilayah WHERE periode_merge = ? GROUP BY level`, periode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

func (r Repo) queryUnits(ctx context.Context, query string, args ...any) ([]domain.Unit, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(s scanner) (domain.Unit, error) {
	var u domain.Unit
	var kodeDagri, namaDagri, parent, province sql.NullString
	err := s.Scan(&u.Periode, &u.Level, &u.KodeBPS, &u.NamaBPS, &kodeDagri, &namaDagri, &parent, &province, &u.FetchedAt)
	if err == sql.ErrNoRows {
		return domain.Unit{}, ErrNotFound
	}
	if err != nil {
		return domain.Unit{}, err
	}
	u.KodeDagri = kodeDagri.String
	u.NamaDagri = namaDagri.String
	u.ParentKode = parent.String
	u.ProvinceKode = province.String
	return u, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
