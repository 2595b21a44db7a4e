// Package server exposes the workspace database over HTTP as a read-only
// reference API. It serves already-public statistical reference data on a
// loopback address, so there is no authentication layer.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"wilayah/internal/domain"
	"wilayah/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	BasePath string
}

type apiErrorBody struct {
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"unit not found"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the wilayah reference API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Wilayah Reference API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerImports(group, cfg.Repo)
	registerUnits(group, cfg.Repo)

	return router, nil
}

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type importsOutput struct {
	Body struct {
		Imports []domain.Import `json:"imports"`
	}
}

func registerImports(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-imports",
		Method:      http.MethodGet,
		Path:        "/imports",
		Summary:     "List loaded periods",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*importsOutput, error) {
		imports, err := r.ListImports(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &importsOutput{}
		out.Body.Imports = imports
		return out, nil
	})
}

type unitOutput struct {
	Body domain.Unit
}

type unitListOutput struct {
	Body struct {
		Units []domain.Unit `json:"units"`
	}
}

type countsOutput struct {
	Body struct {
		Periode string         `json:"periode_merge"`
		Counts  map[string]int `json:"counts"`
	}
}

func registerUnits(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-unit",
		Method:      http.MethodGet,
		Path:        "/periods/{periode}/units/{kode}",
		Summary:     "Look up a unit by code",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Periode string `path:"periode"`
		Kode    string `path:"kode"`
	}) (*unitOutput, error) {
		u, err := r.GetUnit(ctx, input.Periode, input.Kode)
		if err != nil {
			return nil, handleError(err)
		}
		return &unitOutput{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-children",
		Method:      http.MethodGet,
		Path:        "/periods/{periode}/units/{kode}/children",
		Summary:     "List the units directly under a unit",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Periode string `path:"periode"`
		Kode    string `path:"kode"`
	}) (*unitListOutput, error) {
		if _, err := r.GetUnit(ctx, input.Periode, input.Kode); err != nil {
			return nil, handleError(err)
		}
		units, err := r.Children(ctx, input.Periode, input.Kode)
		if err != nil {
			return nil, handleError(err)
		}
		out := &unitListOutput{}
		out.Body.Units = units
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-level",
		Method:      http.MethodGet,
		Path:        "/periods/{periode}/levels/{level}",
		Summary:     "List every unit at a level",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Periode string `path:"periode"`
		Level   string `path:"level" enum:"provinsi,kabupaten,kecamatan,desa"`
	}) (*unitListOutput, error) {
		units, err := r.ListLevel(ctx, input.Periode, input.Level)
		if err != nil {
			return nil, handleError(err)
		}
		out := &unitListOutput{}
		out.Body.Units = units
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "period-counts",
		Method:      http.MethodGet,
		Path:        "/periods/{periode}/counts",
		Summary:     "Unit counts per level for a period",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Periode string `path:"periode"`
	}) (*countsOutput, error) {
		counts, err := r.CountByLevel(ctx, input.Periode)
		if err != nil {
			return nil, handleError(err)
		}
		out := &countsOutput{}
		out.Body.Periode = input.Periode
		out.Body.Counts = counts
		return out, nil
	})
}
