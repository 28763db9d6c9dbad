package roomview

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/pagination"
)

// Update applies one message. RPC failures become state and notices; no
// error escapes.
func (v *View) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ScrollMsg:
		return v.handleScroll(msg.Geometry)
	case RenderedMsg:
		return v.handleRendered(msg.Geometry)
	case JoinMsg:
		return v.handleJoin()
	case RejectMsg:
		return v.handleReject()
	case SearchMsg:
		return v.handleSearch(msg)
	case CancelSearchMsg:
		v.cancelSearch()
		return nil
	case ResendAllMsg:
		return v.handleResendAll()
	case SendMsg:
		return v.handleSend(msg.Body)
	case UserActivityMsg:
		return v.maybeSendReceipt()
	case DismissNoticeMsg:
		v.notice = nil
		return nil
	case ScrollToBottomMsg:
		v.atBottom = true
		v.reads.OnTimelineUpdate(true)
		v.requestScroll(ScrollTo{Bottom: true})
		return nil

	case roomEventMsg:
		if v.stale(msg.gen, "event") {
			return nil
		}
		return tea.Batch(v.handleRoomEvent(msg.ev), v.waitForEvent())
	case subscriptionClosedMsg:
		return nil
	case fetchDoneMsg:
		if v.stale(msg.gen, "fetch") {
			return nil
		}
		return v.handleFetchDone(msg.err)
	case joinDoneMsg:
		if v.stale(msg.gen, "join") {
			return nil
		}
		return v.handleJoinDone(msg.err)
	case leaveDoneMsg:
		if v.stale(msg.gen, "leave") {
			return nil
		}
		return v.handleLeaveDone(msg.err)
	case searchDoneMsg:
		if v.stale(msg.gen, "search") {
			return nil
		}
		v.handleSearchDone(msg)
		return nil
	case receiptDoneMsg:
		if v.stale(msg.gen, "receipt") {
			return nil
		}
		v.handleReceiptDone(msg)
		return nil
	case sendDoneMsg:
		if v.stale(msg.gen, "send") {
			return nil
		}
		if msg.err != nil {
			v.setNotice(SendFailed, msg.err)
		}
		v.refreshTimeline()
		return nil
	}
	return nil
}

func (v *View) stale(gen uint64, kind string) bool {
	if v.mounted && gen == v.gen {
		return false
	}
	staleResults.WithLabelValues(kind).Inc()
	v.log.Debug().Str("kind", kind).Uint64("result_gen", gen).Msg("dropped stale result")
	return true
}

func (v *View) setNotice(kind ErrorKind, err error) {
	v.notice = &Notice{Kind: kind, Err: err}
	v.log.Warn().Str("kind", kind.String()).Str("error", logging.Redact(err.Error())).Msg("room operation failed")
}

func (v *View) handleScroll(g models.Geometry) tea.Cmd {
	if !v.mounted {
		return nil
	}
	v.geometry = g
	v.atBottom = g.AtBottom()
	if v.atBottom {
		v.reads.OnTimelineUpdate(true)
	}
	return v.applyStep(v.pager.OnScroll(g, v.source()))
}

func (v *View) handleRendered(g models.Geometry) tea.Cmd {
	if !v.mounted {
		return nil
	}
	v.geometry = g

	var cmds []tea.Cmd
	if v.firstDraw {
		// Receipt first, then fill the viewport if the initial window is short.
		v.firstDraw = false
		cmds = append(cmds, v.maybeSendReceipt())
		cmds = append(cmds, v.applyStep(v.pager.OnScroll(g, v.source())))
	} else {
		r := v.pager.OnRendered(g, v.source())
		if r.Anchored {
			v.geometry.ScrollTop = r.ScrollTop
			if r.HeightGained != 0 {
				v.requestScroll(ScrollTo{Offset: r.ScrollTop})
			}
			cmds = append(cmds, v.maybeSendReceipt())
		}
		cmds = append(cmds, v.applyStep(r.Step))
		if r.Finished && v.deferred {
			v.deferred = false
			v.refreshTimeline()
		}
	}

	if !v.pager.Paginating() {
		v.reads.OnTimelineUpdate(v.atBottom)
		if v.atBottom && v.search == nil && !v.geometry.AtBottom() {
			v.requestScroll(ScrollTo{Bottom: true})
		}
	}
	return tea.Batch(cmds...)
}

func (v *View) applyStep(step pagination.Step) tea.Cmd {
	switch step.Action {
	case pagination.ActionGrowLocal:
		paginationSteps.WithLabelValues("local").Inc()
		v.rebuildTiles()
		return nil
	case pagination.ActionFetchRemote:
		paginationSteps.WithLabelValues("remote").Inc()
		v.rebuildTiles()
		return v.fetchCmd(step.PageSize)
	}
	return nil
}

func (v *View) fetchCmd(limit int) tea.Cmd {
	client, ctx, gen, roomID := v.client, v.ctx, v.gen, v.roomID
	return func() tea.Msg {
		return fetchDoneMsg{gen: gen, err: client.FetchOlderEvents(ctx, roomID, limit)}
	}
}

func (v *View) handleFetchDone(err error) tea.Cmd {
	v.pager.FetchCompleted(err)
	if err != nil {
		fetchFailures.Inc()
		v.setNotice(FetchFailed, err)
	}
	// Reconcile against the store's current timeline, which may have grown
	// from live events while the fetch was outstanding.
	v.deferred = false
	v.refreshTimeline()
	return nil
}

func (v *View) handleRoomEvent(ev events.RoomEvent) tea.Cmd {
	switch ev.Kind {
	case events.KindTimeline:
		if ev.Event == nil || ev.ToStart {
			return nil
		}
		v.reads.OnLiveEvent(*ev.Event, v.atBottom)
		v.refreshOrDefer()
	case events.KindSendStatus:
		v.refreshOrDefer()
	case events.KindTyping:
		v.typing = v.client.TypingUsers(v.roomID)
	case events.KindMembership:
		if ev.Event != nil && ev.Event.StateKey != nil && *ev.Event.StateKey == v.own.String() {
			v.refreshMembership()
		}
	case events.KindSync:
		v.syncState = ev.SyncState
	}
	return nil
}

// refreshOrDefer holds back re-rendering while a pagination run is in progress.
func (v *View) refreshOrDefer() {
	if v.pager.Paginating() {
		v.deferred = true
		return
	}
	v.refreshTimeline()
}

func (v *View) handleJoin() tea.Cmd {
	switch v.state {
	case StateNoRoom, StateInvited, StateJoinFailed, StateRejectFailed:
	default:
		return nil
	}
	v.state = StateJoining
	client, ctx, gen, roomID := v.client, v.ctx, v.gen, v.roomID
	return func() tea.Msg {
		return joinDoneMsg{gen: gen, err: client.Join(ctx, roomID)}
	}
}

func (v *View) handleJoinDone(err error) tea.Cmd {
	if err != nil {
		v.state = StateJoinFailed
		v.setNotice(JoinFailed, err)
		return nil
	}
	v.state = StateJoined
	v.inviter = ""
	v.refreshMembership()
	v.refreshTimeline()
	return nil
}

func (v *View) handleReject() tea.Cmd {
	switch v.state {
	case StateInvited, StateRejectFailed:
	case StateJoinFailed:
		if v.inviter == "" {
			return nil
		}
	default:
		return nil
	}
	v.state = StateRejecting
	client, ctx, gen, roomID := v.client, v.ctx, v.gen, v.roomID
	return func() tea.Msg {
		return leaveDoneMsg{gen: gen, err: client.Leave(ctx, roomID)}
	}
}

func (v *View) handleLeaveDone(err error) tea.Cmd {
	if err != nil {
		v.state = StateRejectFailed
		v.setNotice(RejectFailed, err)
		return nil
	}
	v.state = StateNoRoom
	v.inviter = ""
	left := v.roomID
	return func() tea.Msg { return ViewNextRoomMsg{Left: left} }
}

func (v *View) handleSearch(msg SearchMsg) tea.Cmd {
	term := strings.TrimSpace(msg.Term)
	if term == "" {
		v.cancelSearch()
		return nil
	}
	scope := msg.Scope
	if scope == "" {
		scope = models.SearchScopeRoom
	}
	if v.search == nil {
		v.search = &searchState{}
	}
	v.search.term = term
	v.search.scope = scope
	v.search.inFlight = true
	v.searchSeq++

	req := models.SearchRequest{Term: term, Scope: scope, RoomID: v.roomID}
	client, ctx, gen, seq := v.client, v.ctx, v.gen, v.searchSeq
	return func() tea.Msg {
		res, err := client.Search(ctx, req)
		return searchDoneMsg{gen: gen, seq: seq, res: res, err: err}
	}
}

func (v *View) handleSearchDone(msg searchDoneMsg) {
	if v.search == nil || msg.seq != v.searchSeq {
		staleResults.WithLabelValues("search").Inc()
		return
	}
	v.search.inFlight = false
	if msg.err != nil {
		v.setNotice(SearchFailed, msg.err)
		if v.search.results == nil {
			// Nothing was replaced yet; fall back to the live timeline.
			v.search = nil
		}
		return
	}
	res := msg.res
	v.search.results = &res
	v.rebuildTiles()
	v.requestScroll(ScrollTo{Offset: 0})
}

func (v *View) cancelSearch() {
	if v.search == nil {
		return
	}
	v.search = nil
	v.searchSeq++
	v.atBottom = true
	v.rebuildTiles()
	v.requestScroll(ScrollTo{Bottom: true})
}

func (v *View) handleResendAll() tea.Cmd {
	unsent := v.timeline.Unsent()
	if len(unsent) == 0 {
		return nil
	}
	client, ctx, gen := v.client, v.ctx, v.gen
	cmds := make([]tea.Cmd, 0, len(unsent))
	for _, ev := range unsent {
		ev := ev
		cmds = append(cmds, func() tea.Msg {
			return sendDoneMsg{gen: gen, err: client.Resend(ctx, ev)}
		})
	}
	return tea.Batch(cmds...)
}

func (v *View) handleSend(body string) tea.Cmd {
	if v.state != StateJoined || strings.TrimSpace(body) == "" {
		return nil
	}
	v.atBottom = true
	v.requestScroll(ScrollTo{Bottom: true})
	client, ctx, gen, roomID := v.client, v.ctx, v.gen, v.roomID
	return func() tea.Msg {
		// A failed send leaves a not_sent echo; the status bar offers resend.
		_, _ = client.Send(ctx, roomID, body)
		return sendDoneMsg{gen: gen}
	}
}

func (v *View) maybeSendReceipt() tea.Cmd {
	if !v.mounted || v.state != StateJoined || v.search != nil {
		return nil
	}
	ev, ok := v.reads.NextReceipt(v.timeline, v.geometry, v.client.ReadUpTo(v.roomID, v.own))
	if !ok {
		return nil
	}
	client, ctx, gen := v.client, v.ctx, v.gen
	return func() tea.Msg {
		return receiptDoneMsg{gen: gen, eventID: ev.ID, err: client.SendReadReceipt(ctx, ev)}
	}
}

func (v *View) handleReceiptDone(msg receiptDoneMsg) {
	if msg.err != nil {
		receiptsSent.WithLabelValues("failed").Inc()
		v.reads.ReceiptFailed(msg.eventID)
		v.log.Warn().Str("event_id", msg.eventID.String()).Str("error", logging.Redact(msg.err.Error())).Msg("read receipt failed")
		return
	}
	receiptsSent.WithLabelValues("sent").Inc()
}
