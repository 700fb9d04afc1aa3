// Package server implements the HTTP tile-serving surface: one handler
// per named data source, backed by the read pipeline (4.E). Grounded on
// the teacher's internal/server MBTilesHandler (tile-path parsing,
// Cache-Control/Content-Type headers, NotFound on miss), generalized
// from one MBTiles file to any configured store.Store.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/tilecached/tilecached/internal/services"
	"github.com/tilecached/tilecached/internal/tileerr"
)

// TileHandler serves tiles for one named data source out of the read
// pipeline, falling through to a generic 404 on a definitive miss.
type TileHandler struct {
	entry        *services.DataEntry
	log          *slog.Logger
	cacheControl string
}

// NewTileHandler builds a TileHandler over entry.
func NewTileHandler(entry *services.DataEntry, cacheControl string, log *slog.Logger) *TileHandler {
	if log == nil {
		log = slog.Default()
	}
	if cacheControl == "" {
		cacheControl = "no-store"
	}
	return &TileHandler{entry: entry, log: log, cacheControl: cacheControl}
}

// ServeHTTP implements http.Handler, expecting a path of the form
// ".../{z}/{x}/{y}.{ext}".
func (h *TileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z, x, y, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	rec, err := h.entry.Pipeline.Get(r.Context(), z, x, y)
	if err != nil {
		if errors.Is(err, tileerr.NotFound) || tileerr.IsAbsent(err) {
			http.Error(w, "tile not found", http.StatusNotFound)
			return
		}
		h.log.Error("tile request failed", "z", z, "x", x, "y", y, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", h.cacheControl)
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	if rec.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", rec.ContentEncoding)
	}
	w.Write(rec.Data)
}

// parseTilePath parses ".../{z}/{x}/{y}.{ext}" (an optional "@2x" scale
// suffix before the extension is accepted and ignored, as tile size
// variants are served from separately configured data sources).
func parseTilePath(p string) (z, x, y int32, ok bool) {
	base := path.Base(p)
	dir := path.Dir(p)

	ext := path.Ext(base)
	yPart := strings.TrimSuffix(base, ext)
	yPart = strings.TrimSuffix(yPart, "@2x")

	xPart := path.Base(dir)
	zPart := path.Base(path.Dir(dir))

	zv, err1 := strconv.Atoi(zPart)
	xv, err2 := strconv.Atoi(xPart)
	yv, err3 := strconv.Atoi(yPart)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return int32(zv), int32(xv), int32(yv), true
}

// Mux builds the full HTTP mux wiring every named data source under
// "/tiles/{name}/{z}/{x}/{y}.{ext}".
func Mux(svc *services.Services, cacheControl string, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	for name, entry := range svc.Datas {
		handler := NewTileHandler(entry, cacheControl, log)
		mux.Handle(fmt.Sprintf("/tiles/%s/", name), http.StripPrefix(fmt.Sprintf("/tiles/%s", name), handler))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
