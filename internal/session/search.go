package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/models"
)

// Search runs a body search over the history store. Responses are cached
// for the configured TTL keyed by term, scope and room.
func (c *LocalClient) Search(ctx context.Context, req models.SearchRequest) (models.SearchResults, error) {
	term := strings.TrimSpace(req.Term)
	if req.Scope == "" {
		req.Scope = models.SearchScopeRoom
	}
	if req.Scope == models.SearchScopeAll {
		req.RoomID = ""
	}

	key := cacheKey(term, req)
	if c.searches != nil {
		if cached, found := c.searches.Get(key); found {
			if res, ok := cached.(models.SearchResults); ok {
				c.log.Debug().Str("term", term).Msg("search cache hit")
				return res, nil
			}
		}
	}

	hits, err := c.events.Search(ctx, db.SearchQuery{Term: term, RoomID: req.RoomID, Limit: c.searchLimit})
	if err != nil {
		return models.SearchResults{}, fmt.Errorf("search: %w", err)
	}

	before, after := req.Before, req.After
	if before == 0 && after == 0 {
		before, after = c.contextLimit, c.contextLimit
	}

	order, err := c.roomOrder(ctx)
	if err != nil {
		return models.SearchResults{}, err
	}

	groups := make(map[id.RoomID]*models.SearchGroup)
	for rank, hit := range hits {
		prev, next, err := c.events.Context(ctx, hit.Event.RoomID, hit.Pos, before, after)
		if err != nil {
			return models.SearchResults{}, fmt.Errorf("search context: %w", err)
		}
		result := models.SearchResult{
			Event:  hit.Event,
			Rank:   float64(len(hits) - rank),
			Before: unwrap(prev),
			After:  unwrap(next),
		}

		group, ok := groups[hit.Event.RoomID]
		if !ok {
			group = &models.SearchGroup{RoomID: hit.Event.RoomID, RoomName: c.RoomName(hit.Event.RoomID)}
			if pos, known := order[hit.Event.RoomID]; known {
				group.Order = pos
			} else {
				group.Order = len(order) + len(groups)
			}
			groups[hit.Event.RoomID] = group
		}
		group.Results = append(group.Results, result)
	}

	res := models.SearchResults{
		Term:       term,
		Scope:      req.Scope,
		Highlights: highlightTerms(term),
		Count:      len(hits),
	}
	for _, group := range groups {
		res.Groups = append(res.Groups, *group)
	}
	sort.Slice(res.Groups, func(i, j int) bool { return res.Groups[i].Order < res.Groups[j].Order })

	if c.searches != nil {
		c.searches.SetDefault(key, res)
	}
	return res, nil
}

func (c *LocalClient) roomOrder(ctx context.Context) (map[id.RoomID]int, error) {
	rooms, err := c.rooms.List(ctx)
	if err != nil {
		return nil, err
	}
	order := make(map[id.RoomID]int, len(rooms))
	for i, room := range rooms {
		order[room.ID] = i
	}
	return order, nil
}

// InvalidateSearches drops cached search responses.
func (c *LocalClient) InvalidateSearches() {
	if c.searches != nil {
		c.searches.Flush()
	}
}

func cacheKey(term string, req models.SearchRequest) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", strings.ToLower(term), req.Scope, req.RoomID, req.Before, req.After)
}

// highlightTerms mirrors what a homeserver reports: the distinct lowercased
// words of the query.
func highlightTerms(term string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(term)) {
		if !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}

func unwrap(stored []db.StoredEvent) []models.Event {
	if len(stored) == 0 {
		return nil
	}
	out := make([]models.Event, len(stored))
	for i := range stored {
		out[i] = stored[i].Event
	}
	return out
}
