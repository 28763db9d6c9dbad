// Package roomview orchestrates one room's timeline view: it owns the
// window, read tracking and membership state, issues the session RPCs and
// drops results that arrive after the view moved to another room.
package roomview

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/pagination"
	"github.com/tOgg1/roomview/internal/readtrack"
	"github.com/tOgg1/roomview/internal/session"
	"github.com/tOgg1/roomview/internal/tiles"
)

// ViewState is the membership state machine of the view.
type ViewState int

const (
	StateNoRoom ViewState = iota
	StateInvited
	StateJoining
	StateRejecting
	StateJoined
	StateJoinFailed
	StateRejectFailed
)

func (s ViewState) String() string {
	switch s {
	case StateNoRoom:
		return "no_room"
	case StateInvited:
		return "invited"
	case StateJoining:
		return "joining"
	case StateRejecting:
		return "rejecting"
	case StateJoined:
		return "joined"
	case StateJoinFailed:
		return "join_failed"
	case StateRejectFailed:
		return "reject_failed"
	default:
		return "unknown"
	}
}

// Options configures a View.
type Options struct {
	PageSize      int
	InitialWindow int
	HasTile       tiles.HasTileFunc
	Location      *time.Location
	Logger        *zerolog.Logger
}

type searchState struct {
	term     string
	scope    models.SearchScope
	inFlight bool
	results  *models.SearchResults
}

// View is driven from a single goroutine through Update; it is not safe
// for concurrent use.
type View struct {
	client  session.Client
	own     id.UserID
	reducer tiles.Reducer
	pager   *pagination.Controller
	reads   *readtrack.Engine
	baseLog zerolog.Logger
	log     zerolog.Logger

	roomID  id.RoomID
	mounted bool
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *events.Subscription

	state   ViewState
	inviter id.UserID

	timeline  models.Timeline
	tiles     []models.Tile
	revision  uint64
	geometry  models.Geometry
	atBottom  bool
	scroll    *ScrollTo
	firstDraw bool
	deferred  bool

	syncState models.SyncState
	hasUnsent bool
	typing    []id.UserID

	search    *searchState
	searchSeq uint64
	notice    *Notice
}

// New creates an unmounted view.
func New(client session.Client, opts Options) *View {
	v := &View{
		client:  client,
		own:     client.UserID(),
		reducer: tiles.Reducer{HasTile: opts.HasTile, Location: opts.Location},
		baseLog: zerolog.Nop(),
	}
	if opts.Logger != nil {
		v.baseLog = opts.Logger.With().Str("component", "roomview").Logger()
	}
	v.log = v.baseLog
	v.pager = pagination.New(pagination.Options{
		PageSize:      opts.PageSize,
		InitialWindow: opts.InitialWindow,
		Logger:        &v.baseLog,
	})
	v.reads = readtrack.New(v.own, &v.baseLog)
	return v
}

// Mount shows a room, resetting all per-room state. The returned command
// waits for live events and must be run by the caller.
func (v *View) Mount(roomID id.RoomID) tea.Cmd {
	v.Unmount()

	v.gen++
	v.roomID = roomID
	v.mounted = true
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.log = v.baseLog.With().Str("room_id", roomID.String()).Uint64("gen", v.gen).Logger()

	v.pager.Reset()
	v.reads.Reset()
	v.geometry = models.Geometry{}
	v.atBottom = true
	v.firstDraw = true
	v.deferred = false
	v.search = nil
	v.notice = nil
	v.inviter = ""
	v.state = StateNoRoom
	v.syncState = v.client.SyncState()

	// Subscribe before the first read so nothing arriving in between is missed.
	sub, err := v.client.Subscribe(roomID)
	if err != nil {
		v.log.Warn().Err(err).Msg("failed to subscribe to room events")
	}
	v.sub = sub

	v.refreshMembership()
	v.refreshTimeline()
	v.requestScroll(ScrollTo{Bottom: true})

	v.log.Debug().Int("events", v.timeline.Len()).Str("state", v.state.String()).Msg("mounted")
	return v.waitForEvent()
}

// SetRoom mounts roomID unless it is already shown.
func (v *View) SetRoom(roomID id.RoomID) tea.Cmd {
	if v.mounted && v.roomID == roomID {
		return nil
	}
	return v.Mount(roomID)
}

// Unmount releases the subscription; results of outstanding RPCs are dropped.
func (v *View) Unmount() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	if v.sub != nil {
		v.sub.Close()
		v.sub = nil
	}
	v.mounted = false
}

// RoomID is the mounted room.
func (v *View) RoomID() id.RoomID { return v.roomID }

// Mounted reports whether a room is shown.
func (v *View) Mounted() bool { return v.mounted }

// State is the membership state.
func (v *View) State() ViewState { return v.state }

// Inviter is the user who sent the pending invite, if any.
func (v *View) Inviter() id.UserID { return v.inviter }

// Tiles is the reducer output to render, oldest first.
func (v *View) Tiles() []models.Tile { return v.tiles }

// Revision changes whenever Tiles changes or the timeline was refreshed.
func (v *View) Revision() uint64 { return v.revision }

// Timeline is the resident timeline snapshot.
func (v *View) Timeline() models.Timeline { return v.timeline }

// UnreadCount is the unread badge value.
func (v *View) UnreadCount() int { return v.reads.UnreadCount() }

// ReadState exposes the read-tracking bookkeeping.
func (v *View) ReadState() models.ReadState { return v.reads.State() }

// WindowCap is the current window size.
func (v *View) WindowCap() int { return v.pager.WindowCap() }

// Pagination returns a copy of the pagination state.
func (v *View) Pagination() pagination.State { return v.pager.State() }

// Phase is the pagination phase.
func (v *View) Phase() pagination.Phase { return v.pager.Phase() }

// AtBottom reports whether the view follows the newest event.
func (v *View) AtBottom() bool { return v.atBottom }

// Searching reports whether a search is active.
func (v *View) Searching() bool { return v.search != nil }

// SearchResults returns the shown search response, if any.
func (v *View) SearchResults() (models.SearchResults, bool) {
	if v.search == nil || v.search.results == nil {
		return models.SearchResults{}, false
	}
	return *v.search.results, true
}

// SearchTerm is the active search term.
func (v *View) SearchTerm() string {
	if v.search == nil {
		return ""
	}
	return v.search.term
}

// Notice is the current dismissible failure, if any.
func (v *View) Notice() (Notice, bool) {
	if v.notice == nil {
		return Notice{}, false
	}
	return *v.notice, true
}

// SyncState is the last pushed connectivity state.
func (v *View) SyncState() models.SyncState { return v.syncState }

// Status selects the status-bar content.
func (v *View) Status() Status {
	return SelectStatus(StatusInputs{
		Searching:      v.search != nil && v.search.results != nil,
		ConnectionLost: v.syncState.ConnectionLost(),
		HasUnsent:      v.hasUnsent,
		UnreadCount:    v.reads.UnreadCount(),
		Typing:         v.typing,
	})
}

// TakeScroll returns and clears the pending scroll request.
func (v *View) TakeScroll() (ScrollTo, bool) {
	if v.scroll == nil {
		return ScrollTo{}, false
	}
	s := *v.scroll
	v.scroll = nil
	return s, true
}

func (v *View) requestScroll(s ScrollTo) {
	v.scroll = &s
}

func (v *View) source() pagination.Source {
	return pagination.Source{
		Len:       v.timeline.Len(),
		HasToken:  v.timeline.HasMoreHistory(),
		Searching: v.search != nil,
	}
}

// refreshTimeline re-reads the store's current timeline and rebuilds tiles.
func (v *View) refreshTimeline() {
	v.timeline = v.client.Timeline(v.roomID)
	v.hasUnsent = len(v.timeline.Unsent()) > 0
	v.typing = v.client.TypingUsers(v.roomID)
	v.rebuildTiles()
}

func (v *View) rebuildTiles() {
	if v.search != nil && v.search.results != nil {
		v.tiles = v.reducer.Search(*v.search.results, v.own)
	} else {
		v.tiles = v.reducer.Reduce(v.timeline, v.pager.WindowCap(), v.own)
	}
	v.revision++
}

func (v *View) refreshMembership() {
	if v.state == StateJoining || v.state == StateRejecting {
		return
	}
	info := v.client.Member(v.roomID, v.own)
	switch info.Membership {
	case event.MembershipJoin:
		v.state = StateJoined
		v.inviter = ""
	case event.MembershipInvite:
		v.state = StateInvited
		v.inviter = info.InvitedBy
	default:
		v.state = StateNoRoom
		v.inviter = ""
	}
}

func (v *View) waitForEvent() tea.Cmd {
	sub, gen := v.sub, v.gen
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-sub.C()
		if !ok {
			return subscriptionClosedMsg{gen: gen}
		}
		return roomEventMsg{gen: gen, ev: ev}
	}
}
