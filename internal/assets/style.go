package assets

import (
	"encoding/json"
	"fmt"

	"github.com/tilecached/tilecached/internal/tileerr"
)

// StyleCache manages style JSON documents.
type StyleCache struct {
	*Cache
}

// NewStyleCache builds a StyleCache rooted at dir.
func NewStyleCache(dir string) *StyleCache {
	return &StyleCache{Cache: NewCache(KindStyle, dir)}
}

// ValidateStyle checks that data parses as a JSON object; the style
// language's internal schema is out of scope here (4.1 Non-goals).
func ValidateStyle(data []byte) error {
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("assets: style: %w: %v", tileerr.SchemaInvalid, err)
	}
	return nil
}
