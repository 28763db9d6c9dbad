package models

import (
	"time"

	"maunium.net/go/mautrix/id"
)

// TileKind distinguishes renderable units.
type TileKind string

const (
	TileMessage       TileKind = "message"
	TileDateSeparator TileKind = "date_separator"
	TileContextual    TileKind = "contextual"
	TileRoomHeader    TileKind = "room_header"
)

// Tile is a render-only projection of an event or a synthetic separator.
// Tiles are recomputed from inputs and never mutated in place.
type Tile struct {
	Kind         TileKind
	Key          string
	Event        *Event    // nil for separators and headers
	Timestamp    time.Time // date separators: the instant whose local day is shown
	RoomID       id.RoomID // room headers
	RoomName     string
	Continuation bool
	IsLast       bool
	Own          bool
	Highlights   []string
}

// EventID returns the referenced event id, or "" for synthetic tiles.
func (t Tile) EventID() id.EventID {
	if t.Event == nil {
		return ""
	}
	return t.Event.ID
}

// ReadState is the read-tracking bookkeeping for one view.
type ReadState struct {
	LastReceiptEventID id.EventID
	LastReceiptIndex   int
	UnreadCount        int
}
