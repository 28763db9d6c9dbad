// Package readtrack decides which event the user has seen, when a read
// receipt is due, and how many live messages arrived while scrolled away.
package readtrack

import (
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// Engine is owned by a single view and is not safe for concurrent use.
type Engine struct {
	own id.UserID
	log zerolog.Logger

	state models.ReadState
	// previous receipt, restored when the in-flight receipt fails
	prevReceipt id.EventID
}

// New returns an engine for the given local user.
func New(own id.UserID, logger *zerolog.Logger) *Engine {
	e := &Engine{own: own, log: zerolog.Nop()}
	if logger != nil {
		e.log = logger.With().Str("component", "readtrack").Logger()
	}
	e.Reset()
	return e
}

// Reset clears all read state; used on room change.
func (e *Engine) Reset() {
	e.state = models.ReadState{LastReceiptIndex: -1}
	e.prevReceipt = ""
}

// State returns the current read state.
func (e *Engine) State() models.ReadState { return e.state }

// UnreadCount is the badge value.
func (e *Engine) UnreadCount() int { return e.state.UnreadCount }

// LastSeenIndex scans from the newest event and returns the first event not
// sent by the local user whose tile lies fully above the viewport's bottom
// edge. Without any measured tile there is no result.
func (e *Engine) LastSeenIndex(tl models.Timeline, g models.Geometry) (int, bool) {
	if !g.Measured() {
		return 0, false
	}
	bottom := g.ViewportBottom()
	for i := len(tl.Events) - 1; i >= 0; i-- {
		ev := &tl.Events[i]
		if e.own != "" && ev.Sender == e.own {
			continue
		}
		extent, ok := g.Extents[ev.ID]
		if !ok {
			continue
		}
		if extent.Bottom < bottom {
			return i, true
		}
	}
	return 0, false
}

// NextReceipt returns the event a receipt should be sent for, if the read
// cursor is strictly newer than both the store's acknowledged position and
// the last receipt this engine emitted. The emission is recorded.
func (e *Engine) NextReceipt(tl models.Timeline, g models.Geometry, readUpTo id.EventID) (models.Event, bool) {
	idx, ok := e.LastSeenIndex(tl, g)
	if !ok {
		return models.Event{}, false
	}
	acked := tl.IndexOf(readUpTo)
	// Indices shift as history is prepended, so re-resolve by id.
	if own := tl.IndexOf(e.state.LastReceiptEventID); own > acked {
		acked = own
	}
	if idx <= acked {
		return models.Event{}, false
	}

	ev := tl.Events[idx]
	e.prevReceipt = e.state.LastReceiptEventID
	e.state.LastReceiptEventID = ev.ID
	e.state.LastReceiptIndex = idx
	e.log.Debug().Str("event_id", ev.ID.String()).Int("index", idx).Int("acked", acked).Msg("read receipt due")
	return ev, true
}

// ReceiptFailed rolls back a receipt that the store rejected so it can be retried.
func (e *Engine) ReceiptFailed(eventID id.EventID) {
	if e.state.LastReceiptEventID != eventID {
		return
	}
	e.state.LastReceiptEventID = e.prevReceipt
	e.state.LastReceiptIndex = -1
	e.prevReceipt = ""
}

// OnLiveEvent updates the unread badge for one newly arrived live event.
// History events must not be passed here.
func (e *Engine) OnLiveEvent(ev models.Event, atBottom bool) {
	if atBottom {
		e.state.UnreadCount = 0
		return
	}
	if e.own != "" && ev.Sender == e.own {
		return
	}
	if ev.IsMembership() {
		return
	}
	e.state.UnreadCount++
}

// OnTimelineUpdate forces the badge to zero while the viewport is at the bottom.
func (e *Engine) OnTimelineUpdate(atBottom bool) {
	if atBottom {
		e.state.UnreadCount = 0
	}
}
