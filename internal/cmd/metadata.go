package cmd

import (
	"fmt"

	"github.com/tilecached/tilecached/internal/store"
)

// metadataToPatch converts a fully-read Metadata back into the raw
// name/value Patch form UpdateMetadata expects, for copying metadata
// across stores during export.
func metadataToPatch(m store.Metadata) store.Patch {
	set := map[string]string{
		"name":        m.Name,
		"description": m.Description,
		"attribution": m.Attribution,
		"version":     m.Version,
		"type":        m.Type,
		"format":      m.Format,
		"minzoom":     fmt.Sprintf("%d", m.MinZoom),
		"maxzoom":     fmt.Sprintf("%d", m.MaxZoom),
		"bounds":      fmt.Sprintf("%g,%g,%g,%g", m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3]),
		"center":      fmt.Sprintf("%g,%g,%g", m.Center[0], m.Center[1], m.Center[2]),
		"scheme":      m.Scheme,
	}
	if m.VectorLayers != "" {
		set["vector_layers"] = m.VectorLayers
	}
	return store.Patch{Set: set}
}
