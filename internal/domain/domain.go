// Package domain holds the models shared by the workspace database and the
// read API.
package domain

// Unit is one administrative unit as stored in the workspace database.
type Unit struct {
	Periode      string `json:"periode_merge"`
	Level        string `json:"level"`
	KodeBPS      string `json:"kode_bps"`
	NamaBPS      string `json:"nama_bps"`
	KodeDagri    string `json:"kode_dagri,omitempty"`
	NamaDagri    string `json:"nama_dagri,omitempty"`
	ParentKode   string `json:"parent_kode_bps,omitempty"`
	ProvinceKode string `json:"province_kode_bps,omitempty"`
	FetchedAt    string `json:"fetched_at" format:"date-time"`
}

// Import records one load of a periode into the workspace database.
type Import struct {
	RunID      string `json:"run_id"`
	Periode    string `json:"periode_merge"`
	ImportedAt string `json:"imported_at" format:"date-time"`
	Units      int    `json:"units"`
}
