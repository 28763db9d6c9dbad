// Package tiles reduces a room timeline (or a search response) into the
// ordered list of tiles the rendering surface draws.
package tiles

import (
	"sort"
	"strconv"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// HasTileFunc reports whether the rendering surface can draw an event.
type HasTileFunc func(ev *models.Event) bool

// tileTypes are the event types drawn by the default surface.
var tileTypes = map[string]struct{}{
	event.EventMessage.Type:   {},
	event.StateMember.Type:    {},
	event.StateRoomName.Type:  {},
	event.StateTopic.Type:     {},
	event.CallInvite.Type:     {},
	event.CallAnswer.Type:     {},
	event.CallHangup.Type:     {},
	event.EventEncrypted.Type: {},
}

// DefaultHasTile draws messages, membership, name/topic changes and calls.
func DefaultHasTile(ev *models.Event) bool {
	if ev == nil {
		return false
	}
	_, ok := tileTypes[ev.Type.Type]
	return ok
}

// Reducer is a pure function object; the zero value uses DefaultHasTile and time.Local.
type Reducer struct {
	HasTile  HasTileFunc
	Location *time.Location
}

func (r Reducer) hasTile(ev *models.Event) bool {
	if r.HasTile == nil {
		return DefaultHasTile(ev)
	}
	return r.HasTile(ev)
}

func (r Reducer) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// Reduce walks the timeline from the newest event backwards, emitting at most
// windowCap message tiles, and returns them oldest first with date separators
// and continuation flags applied.
func (r Reducer) Reduce(tl models.Timeline, windowCap int, own id.UserID) []models.Tile {
	if windowCap <= 0 || len(tl.Events) == 0 {
		return nil
	}

	picked := make([]int, 0, minInt(windowCap, len(tl.Events)))
	for i := len(tl.Events) - 1; i >= 0 && len(picked) < windowCap; i-- {
		if !r.hasTile(&tl.Events[i]) {
			continue
		}
		picked = append(picked, i)
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}

	last := len(tl.Events) - 1
	out := make([]models.Tile, 0, len(picked)+2)
	for k, idx := range picked {
		ev := &tl.Events[idx]
		separator := false
		continuation := false
		if k > 0 {
			prev := &tl.Events[picked[k-1]]
			if !r.sameDay(prev, ev) {
				separator = true
			} else {
				continuation = continues(prev, ev)
			}
		}
		// Index 0 is always the room-creation event.
		if idx == 1 {
			separator = true
			continuation = false
		}
		if separator {
			out = append(out, r.dateSeparator(ev, ""))
		}
		out = append(out, models.Tile{
			Kind:         models.TileMessage,
			Key:          string(ev.ID),
			Event:        ev,
			Continuation: continuation,
			IsLast:       idx == last,
			Own:          own != "" && ev.Sender == own,
		})
	}
	return out
}

// continues is true for a run of the same sender and type. Events without a
// sender never continue a run.
func continues(prev, ev *models.Event) bool {
	if prev.Sender == "" || ev.Sender == "" {
		return false
	}
	return prev.Sender == ev.Sender && prev.Type.Type == ev.Type.Type
}

func (r Reducer) sameDay(a, b *models.Event) bool {
	loc := r.location()
	ay, am, ad := a.Time().In(loc).Date()
	by, bm, bd := b.Time().In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func (r Reducer) dateSeparator(ev *models.Event, suffix string) models.Tile {
	return models.Tile{
		Kind:      models.TileDateSeparator,
		Key:       strconv.FormatInt(ev.TimestampMs, 10) + suffix,
		Timestamp: ev.Time().In(r.location()),
	}
}

// Search projects a search response: groups in store rank order, results
// newest first, each preceded by a date separator and wrapped in up to one
// drawable context event on either side.
func (r Reducer) Search(res models.SearchResults, own id.UserID) []models.Tile {
	if len(res.Groups) == 0 {
		return nil
	}
	groups := append([]models.SearchGroup(nil), res.Groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Order < groups[j].Order })
	highlights := SortHighlights(res.Highlights, res.Term)

	var out []models.Tile
	for _, group := range groups {
		if res.Scope == models.SearchScopeAll {
			name := group.RoomName
			if name == "" {
				name = string(group.RoomID)
			}
			out = append(out, models.Tile{
				Kind:     models.TileRoomHeader,
				Key:      string(group.RoomID),
				RoomID:   group.RoomID,
				RoomName: name,
			})
		}

		results := append([]models.SearchResult(nil), group.Results...)
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Event.TimestampMs > results[j].Event.TimestampMs
		})
		for i := range results {
			hit := &results[i]
			key := string(hit.Event.ID)
			out = append(out, r.dateSeparator(&hit.Event, "-search"))
			if n := len(hit.Before); n > 0 {
				// Before is nearest first.
				if ctx := &hit.Before[0]; r.hasTile(ctx) {
					out = append(out, r.contextual(ctx, key+"-1", own))
				}
			}
			if r.hasTile(&hit.Event) {
				out = append(out, models.Tile{
					Kind:       models.TileMessage,
					Key:        key + "+0",
					Event:      &hit.Event,
					Own:        own != "" && hit.Event.Sender == own,
					Highlights: highlights,
				})
			}
			if len(hit.After) > 0 {
				if ctx := &hit.After[0]; r.hasTile(ctx) {
					out = append(out, r.contextual(ctx, key+"+1", own))
				}
			}
		}
	}
	return out
}

func (r Reducer) contextual(ev *models.Event, key string, own id.UserID) models.Tile {
	return models.Tile{
		Kind:  models.TileContextual,
		Key:   key,
		Event: ev,
		Own:   own != "" && ev.Sender == own,
	}
}

// SortHighlights orders server highlights longest first so overlapping terms
// favour the more specific match. Without server highlights the literal
// term is highlighted.
func SortHighlights(highlights []string, term string) []string {
	if len(highlights) == 0 {
		if term == "" {
			return nil
		}
		return []string{term}
	}
	out := make([]string, 0, len(highlights))
	seen := make(map[string]struct{}, len(highlights))
	for _, h := range highlights {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
