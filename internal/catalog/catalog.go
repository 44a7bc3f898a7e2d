package catalog

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/tidwall/gjson"

	"cookia/internal/logging"
)

// ManifestName is the bundled manifest mapping model ids to engine libraries.
const ManifestName = "mlc-app-config.json"

// Entry is one element of the manifest's model_list.
type Entry struct {
	ModelID  string `json:"model_id"`
	ModelLib string `json:"model_lib,omitempty"`
}

// Catalog resolves model ids against the manifest in the asset tree.
type Catalog struct {
	assets fs.FS
	logger *logging.Logger
}

// New creates a catalog reading ManifestName from assets.
func New(assets fs.FS, logger *logging.Logger) *Catalog {
	return &Catalog{assets: assets, logger: logger}
}

// ResolveLibraryID returns the model_lib of the first manifest entry whose
// model_id matches and whose model_lib is non-blank. Read and parse failures
// are reported as absence.
func (c *Catalog) ResolveLibraryID(modelID string) (string, bool) {
	list, err := c.modelList()
	if err != nil {
		c.logger.Debug("catalog.manifest.unreadable", "Manifest lookup failed", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
		return "", false
	}

	var lib string
	found := false
	list.ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("model_id").String() != modelID {
			return true
		}
		candidate := entry.Get("model_lib")
		if candidate.Type != gjson.String || strings.TrimSpace(candidate.Str) == "" {
			return true
		}
		lib, found = candidate.Str, true
		return false
	})

	return lib, found
}

// Entries lists the manifest in document order.
func (c *Catalog) Entries() ([]Entry, error) {
	list, err := c.modelList()
	if err != nil {
		return nil, err
	}

	var entries []Entry
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		entries = append(entries, Entry{
			ModelID:  entry.Get("model_id").String(),
			ModelLib: entry.Get("model_lib").String(),
		})
		return true
	})
	return entries, nil
}

func (c *Catalog) modelList() (gjson.Result, error) {
	data, err := fs.ReadFile(c.assets, ManifestName)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("manifest is not valid JSON")
	}

	list := gjson.GetBytes(data, "model_list")
	if !list.IsArray() {
		return gjson.Result{}, fmt.Errorf("manifest has no model_list array")
	}
	return list, nil
}
