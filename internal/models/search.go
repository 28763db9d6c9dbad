package models

import (
	"strings"

	"maunium.net/go/mautrix/id"
)

// SearchScope selects which rooms a search covers.
type SearchScope string

const (
	SearchScopeRoom SearchScope = "Room"
	SearchScopeAll  SearchScope = "All"
)

// ParseSearchScope accepts "room"/"all" in any case.
func ParseSearchScope(raw string) (SearchScope, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "room":
		return SearchScopeRoom, true
	case "all":
		return SearchScopeAll, true
	}
	return "", false
}

// SearchRequest is passed to the session client.
type SearchRequest struct {
	Term   string
	Scope  SearchScope
	RoomID id.RoomID // used when Scope is Room
	Before int       // context events before each result
	After  int       // context events after each result
}

// SearchResult is a single hit with surrounding context, nearest first.
type SearchResult struct {
	Event  Event
	Rank   float64
	Before []Event
	After  []Event
}

// SearchGroup holds the results for one room. Order is the store-provided rank.
type SearchGroup struct {
	RoomID   id.RoomID
	RoomName string
	Order    int
	Results  []SearchResult
}

// SearchResults is the full search response.
type SearchResults struct {
	Term       string
	Scope      SearchScope
	Groups     []SearchGroup
	Highlights []string
	Count      int
}
