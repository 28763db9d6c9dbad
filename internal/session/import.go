package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// maxImportLine bounds a single JSON event line.
const maxImportLine = 1 << 20

// ImportJSONL ingests one JSON event per line. Events without a room id are
// assigned defaultRoom. Blank lines and lines starting with '#' are skipped.
// It returns the number of lines ingested.
func (c *LocalClient) ImportJSONL(ctx context.Context, r io.Reader, defaultRoom id.RoomID) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var ev models.Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if ev.RoomID == "" {
			ev.RoomID = defaultRoom
		}
		if err := c.Ingest(ctx, ev); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read import: %w", err)
	}
	c.InvalidateSearches()
	return count, nil
}
