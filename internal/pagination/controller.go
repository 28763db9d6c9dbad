// Package pagination owns how much of a room timeline is materialized and
// whether a history fetch is in flight, and keeps the viewport anchored when
// older content is prepended.
package pagination

import (
	"github.com/rs/zerolog"

	"github.com/tOgg1/roomview/internal/models"
)

const (
	DefaultPageSize      = 20
	DefaultInitialWindow = 20
)

// Phase is the derived controller state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGrowingWindowLocally
	PhaseAwaitingRemoteFetch
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhaseGrowingWindowLocally:
		return "growing_locally"
	case PhaseAwaitingRemoteFetch:
		return "awaiting_remote_fetch"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// State is the transient pagination state of one view.
type State struct {
	WindowCap           int
	Paginating          bool
	AwaitingRemoteFetch bool
	AnchorHeight        *int
}

// Source describes the timeline the controller is paging over.
type Source struct {
	Len       int
	HasToken  bool
	Searching bool
}

// Action is what the caller must do after a growth decision.
type Action int

const (
	ActionNone Action = iota
	ActionGrowLocal
	ActionFetchRemote
)

func (a Action) String() string {
	switch a {
	case ActionGrowLocal:
		return "local"
	case ActionFetchRemote:
		return "remote"
	default:
		return "none"
	}
}

// Step is a growth decision. For ActionFetchRemote, PageSize events should be
// requested from the store.
type Step struct {
	Action    Action
	WindowCap int
	PageSize  int
}

// Rendered is the outcome of a post-layout measurement.
type Rendered struct {
	// Anchored is set when ScrollTop was moved to compensate for prepended content.
	Anchored bool
	// ScrollTop is the offset the surface must apply.
	ScrollTop int
	// HeightGained is the content height added above the fold.
	HeightGained int
	// Finished is set when this render ended a pagination run.
	Finished bool
	// Step is a further growth decision; ActionNone when the run is over.
	Step Step
}

// Options configures a Controller.
type Options struct {
	PageSize      int
	InitialWindow int
	Logger        *zerolog.Logger
}

// Controller is not safe for concurrent use; the owning view serializes calls.
type Controller struct {
	pageSize      int
	initialWindow int
	log           zerolog.Logger

	state       State
	fetchFailed bool
	last        Source
}

// New creates a controller with the window at its initial size.
func New(opts Options) *Controller {
	c := &Controller{
		pageSize:      opts.PageSize,
		initialWindow: opts.InitialWindow,
		log:           zerolog.Nop(),
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.initialWindow <= 0 {
		c.initialWindow = DefaultInitialWindow
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "pagination").Logger()
	}
	c.Reset()
	return c
}

// Reset discards all state; used when the room identity changes.
func (c *Controller) Reset() {
	c.state = State{WindowCap: c.initialWindow}
	c.fetchFailed = false
	c.last = Source{}
}

func (c *Controller) PageSize() int  { return c.pageSize }
func (c *Controller) WindowCap() int { return c.state.WindowCap }
func (c *Controller) Paginating() bool {
	return c.state.Paginating
}
func (c *Controller) AwaitingRemoteFetch() bool {
	return c.state.AwaitingRemoteFetch
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	out := c.state
	if c.state.AnchorHeight != nil {
		anchor := *c.state.AnchorHeight
		out.AnchorHeight = &anchor
	}
	return out
}

// Phase derives the state-machine phase; Exhausted is recomputed on every call.
func (c *Controller) Phase() Phase {
	switch {
	case c.state.AwaitingRemoteFetch:
		return PhaseAwaitingRemoteFetch
	case c.state.Paginating:
		return PhaseGrowingWindowLocally
	case !c.last.HasToken && c.state.WindowCap >= c.last.Len:
		return PhaseExhausted
	default:
		return PhaseIdle
	}
}

// OnScroll is the user-scroll trigger. It never starts a run while one is in
// progress; the run re-evaluates itself after each render.
func (c *Controller) OnScroll(g models.Geometry, src Source) Step {
	c.last = src
	if c.state.Paginating {
		return Step{}
	}
	return c.maybeGrow(g, src)
}

// OnTimelineExtended handles history arriving outside a run (for example a
// back-paginated event pushed by the store).
func (c *Controller) OnTimelineExtended(g models.Geometry, src Source) Step {
	return c.OnScroll(g, src)
}

func (c *Controller) maybeGrow(g models.Geometry, src Source) Step {
	if c.state.AwaitingRemoteFetch {
		return Step{}
	}
	if !g.NearTop() || src.Searching || !src.HasToken {
		return Step{}
	}

	anchor := g.ContentHeight
	c.state.Paginating = true
	c.state.AnchorHeight = &anchor

	if c.state.WindowCap < src.Len {
		next := c.state.WindowCap + c.pageSize
		if next > src.Len {
			next = src.Len
		}
		c.state.WindowCap = next
		c.log.Debug().Int("window_cap", next).Int("timeline_len", src.Len).Msg("grow window locally")
		return Step{Action: ActionGrowLocal, WindowCap: next}
	}

	// A cap already beyond the resident length is an outstanding request for
	// more history; keep it rather than growing again.
	if c.state.WindowCap <= src.Len {
		c.state.WindowCap = src.Len + c.pageSize
	}
	c.state.AwaitingRemoteFetch = true
	c.log.Debug().Int("window_cap", c.state.WindowCap).Int("timeline_len", src.Len).Msg("fetch older events")
	return Step{Action: ActionFetchRemote, WindowCap: c.state.WindowCap, PageSize: c.pageSize}
}

// FetchCompleted clears the in-flight flag. A failed fetch leaves the window
// cap as requested; the run ends at the next render and a later scroll retries.
func (c *Controller) FetchCompleted(err error) {
	c.state.AwaitingRemoteFetch = false
	c.fetchFailed = err != nil
	if err != nil {
		c.log.Warn().Err(err).Int("window_cap", c.state.WindowCap).Msg("history fetch failed")
	}
}

// OnRendered applies scroll anchoring once the new content height is known
// and decides whether the run continues.
func (c *Controller) OnRendered(g models.Geometry, src Source) Rendered {
	c.last = src
	if !c.state.Paginating || c.state.AwaitingRemoteFetch {
		return Rendered{ScrollTop: g.ScrollTop}
	}

	out := Rendered{ScrollTop: g.ScrollTop}
	if c.state.AnchorHeight != nil {
		out.HeightGained = g.ContentHeight - *c.state.AnchorHeight
		out.ScrollTop = g.ScrollTop + out.HeightGained
		out.Anchored = true
	}
	c.state.AnchorHeight = nil

	adjusted := g
	adjusted.ScrollTop = out.ScrollTop
	if c.fetchFailed {
		c.fetchFailed = false
	} else {
		out.Step = c.maybeGrow(adjusted, src)
	}
	if out.Step.Action == ActionNone {
		c.state.Paginating = false
		out.Finished = true
	}
	return out
}
