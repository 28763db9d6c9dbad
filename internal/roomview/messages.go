package roomview

import (
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
)

// ScrollMsg reports a user scroll.
type ScrollMsg struct{ Geometry models.Geometry }

// RenderedMsg reports the layout after the surface drew the current tiles.
type RenderedMsg struct{ Geometry models.Geometry }

// JoinMsg requests joining the room.
type JoinMsg struct{}

// RejectMsg requests rejecting the pending invite.
type RejectMsg struct{}

// SearchMsg starts a search. An empty term cancels the search.
type SearchMsg struct {
	Term  string
	Scope models.SearchScope
}

// CancelSearchMsg restores the live timeline.
type CancelSearchMsg struct{}

// ResendAllMsg resends every unsent event.
type ResendAllMsg struct{}

// SendMsg posts a text message to the active room.
type SendMsg struct{ Body string }

// DismissNoticeMsg clears the current notice.
type DismissNoticeMsg struct{}

// ScrollToBottomMsg jumps to the newest event, e.g. from the unread badge.
type ScrollToBottomMsg struct{}

// UserActivityMsg is a debounced activity signal; it may trigger a receipt.
type UserActivityMsg struct{}

// ViewNextRoomMsg is emitted after an invite was rejected.
type ViewNextRoomMsg struct{ Left id.RoomID }

// ScrollTo is a scroll request for the surface.
type ScrollTo struct {
	Offset int
	// Bottom pins the viewport to the end of the content; Offset is ignored.
	Bottom bool
}

// Async results carry the generation of the view that issued them.

type roomEventMsg struct {
	gen uint64
	ev  events.RoomEvent
}

type subscriptionClosedMsg struct{ gen uint64 }

type fetchDoneMsg struct {
	gen uint64
	err error
}

type joinDoneMsg struct {
	gen uint64
	err error
}

type leaveDoneMsg struct {
	gen uint64
	err error
}

type searchDoneMsg struct {
	gen uint64
	seq uint64
	res models.SearchResults
	err error
}

type receiptDoneMsg struct {
	gen     uint64
	eventID id.EventID
	err     error
}

type sendDoneMsg struct {
	gen uint64
	err error
}
