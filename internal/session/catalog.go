package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tonimelisma/learnsync/internal/contentid"
)

// catalogEntry is the on-disk shape of one catalog item.
type catalogEntry struct {
	ID        contentid.ID   `json:"id"`
	Kind      contentid.Kind `json:"kind"`
	YoutubeID string         `json:"youtube_id"`
	Title     string         `json:"title"`
	Duration  int            `json:"duration"`
}

// LoadCatalog reads a flat JSON array of catalog items. Entries without an
// id are rejected; videos must carry a youtube id.
func LoadCatalog(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: reading catalog %s: %w", path, err)
	}

	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("session: decoding catalog %s: %w", path, err)
	}

	items := make([]Item, 0, len(entries))

	for i, e := range entries {
		if e.ID.IsZero() {
			return nil, fmt.Errorf("session: catalog entry %d has no id", i)
		}

		if e.Kind == contentid.KindVideo && e.YoutubeID == "" {
			return nil, fmt.Errorf("session: catalog video %s has no youtube_id", e.ID)
		}

		items = append(items, Item{
			ID:         e.ID,
			Kind:       e.Kind,
			ExternalID: e.YoutubeID,
			Title:      e.Title,
			Duration:   e.Duration,
		})
	}

	return items, nil
}
