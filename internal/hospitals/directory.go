// Package hospitals holds the hospital reference directory. The directory is
// supplied as a JSON file at startup rather than compiled in, so deployments
// can differ without rebuilding.
package hospitals

import (
	"encoding/json"
	"fmt"
	"os"

	"medex/exchange-service/internal/models"

	"golang.org/x/crypto/bcrypt"
)

type Entry struct {
	models.Hospital
	APIKeyHash string `json:"apiKeyHash,omitempty"`
}

type Directory struct {
	entries []Entry
	byID    map[string]Entry
}

func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hospital directory: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("hospital directory %s: %w", path, err)
	}
	return New(entries), nil
}

func New(entries []Entry) *Directory {
	byID := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
	}
	return &Directory{entries: entries, byID: byID}
}

func (d *Directory) Lookup(id string) (Entry, bool) {
	entry, ok := d.byID[id]
	return entry, ok
}

// Resolve maps hospital ids to full identities, failing on the first id the
// directory does not know.
func (d *Directory) Resolve(ids []string) ([]models.Hospital, error) {
	resolved := make([]models.Hospital, 0, len(ids))
	for _, id := range ids {
		entry, ok := d.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown hospital %q", id)
		}
		resolved = append(resolved, entry.Hospital)
	}
	return resolved, nil
}

// VerifyKey checks an API key against the stored bcrypt hash. Hospitals
// without a configured hash never authenticate.
func (d *Directory) VerifyKey(id, apiKey string) bool {
	entry, ok := d.byID[id]
	if !ok || entry.APIKeyHash == "" || apiKey == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(entry.APIKeyHash), []byte(apiKey)) == nil
}
