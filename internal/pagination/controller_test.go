package pagination

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tOgg1/roomview/internal/models"
)

func geom(scrollTop, viewport, content int) models.Geometry {
	return models.Geometry{ScrollTop: scrollTop, ViewportHeight: viewport, ContentHeight: content}
}

func TestLocalGrowthAnchorsScroll(t *testing.T) {
	c := New(Options{})
	src := Source{Len: 50, HasToken: true}

	step := c.OnScroll(geom(50, 300, 1000), src)
	require.Equal(t, ActionGrowLocal, step.Action)
	require.Equal(t, 40, step.WindowCap)
	require.Equal(t, PhaseGrowingWindowLocally, c.Phase())
	require.Equal(t, 1000, *c.State().AnchorHeight)

	res := c.OnRendered(geom(50, 300, 1400), src)
	require.True(t, res.Anchored)
	require.Equal(t, 400, res.HeightGained)
	require.Equal(t, 450, res.ScrollTop)
	require.True(t, res.Finished)
	require.Equal(t, ActionNone, res.Step.Action)
	require.False(t, c.Paginating())
	require.Nil(t, c.State().AnchorHeight)
}

func TestLocalGrowthCappedAtTimelineLength(t *testing.T) {
	c := New(Options{PageSize: 20, InitialWindow: 20})
	step := c.OnScroll(geom(0, 300, 600), Source{Len: 25, HasToken: true})
	require.Equal(t, ActionGrowLocal, step.Action)
	require.Equal(t, 25, c.WindowCap())
}

func TestRemoteFetchWhenWindowExceedsResidentEvents(t *testing.T) {
	c := New(Options{InitialWindow: 5})
	src := Source{Len: 3, HasToken: true}

	step := c.OnScroll(geom(0, 300, 120), src)
	require.Equal(t, ActionFetchRemote, step.Action)
	require.Equal(t, DefaultPageSize, step.PageSize)
	require.Equal(t, 5, c.WindowCap())
	require.Equal(t, PhaseAwaitingRemoteFetch, c.Phase())

	// Overlapping triggers are coalesced while the fetch is outstanding.
	require.Equal(t, ActionNone, c.OnScroll(geom(0, 300, 120), src).Action)
	require.Equal(t, ActionNone, c.OnTimelineExtended(geom(0, 300, 120), src).Action)

	// Renders while waiting do not consume the anchor.
	waiting := c.OnRendered(geom(0, 300, 120), src)
	require.False(t, waiting.Anchored)
	require.NotNil(t, c.State().AnchorHeight)

	c.FetchCompleted(nil)
	grown := Source{Len: 7, HasToken: true}
	res := c.OnRendered(geom(0, 300, 520), grown)
	require.True(t, res.Anchored)
	require.Equal(t, 400, res.ScrollTop)
	require.True(t, res.Finished)
	require.Equal(t, 5, c.WindowCap())
}

func TestRemoteFetchGrowsCapBeyondResidentLength(t *testing.T) {
	c := New(Options{InitialWindow: 10, PageSize: 20})
	step := c.OnScroll(geom(0, 300, 500), Source{Len: 10, HasToken: true})
	require.Equal(t, ActionFetchRemote, step.Action)
	require.Equal(t, 30, step.WindowCap)
}

func TestFailedFetchStopsRunAndScrollRetries(t *testing.T) {
	c := New(Options{InitialWindow: 10})
	src := Source{Len: 10, HasToken: true}

	require.Equal(t, ActionFetchRemote, c.OnScroll(geom(0, 300, 500), src).Action)
	capAfterRequest := c.WindowCap()

	c.FetchCompleted(errors.New("network down"))
	require.False(t, c.AwaitingRemoteFetch())

	res := c.OnRendered(geom(0, 300, 500), src)
	require.True(t, res.Finished)
	require.Equal(t, ActionNone, res.Step.Action)
	require.Equal(t, capAfterRequest, c.WindowCap())

	retry := c.OnScroll(geom(0, 300, 500), src)
	require.Equal(t, ActionFetchRemote, retry.Action)
	require.Equal(t, capAfterRequest, c.WindowCap())
}

func TestRunRepeatsWhileStillNearTop(t *testing.T) {
	c := New(Options{PageSize: 10, InitialWindow: 10})
	src := Source{Len: 30, HasToken: true}

	require.Equal(t, ActionGrowLocal, c.OnScroll(geom(0, 300, 100), src).Action)
	res := c.OnRendered(geom(0, 300, 200), src)
	require.Equal(t, 100, res.ScrollTop)
	require.Equal(t, ActionGrowLocal, res.Step.Action)
	require.Equal(t, 30, c.WindowCap())

	res = c.OnRendered(geom(100, 300, 300), src)
	require.Equal(t, 200, res.ScrollTop)
	require.Equal(t, ActionFetchRemote, res.Step.Action)
	require.False(t, res.Finished)
	require.True(t, c.Paginating())
}

func TestNoGrowthWithoutTriggerConditions(t *testing.T) {
	c := New(Options{})
	require.Equal(t, ActionNone, c.OnScroll(geom(400, 300, 2000), Source{Len: 50, HasToken: true}).Action)
	require.Equal(t, ActionNone, c.OnScroll(geom(0, 300, 2000), Source{Len: 50, HasToken: false}).Action)
	require.Equal(t, ActionNone, c.OnScroll(geom(0, 300, 2000), Source{Len: 50, HasToken: true, Searching: true}).Action)
	require.False(t, c.Paginating())
}

func TestExhaustedIsRecomputed(t *testing.T) {
	c := New(Options{InitialWindow: 20})
	c.OnScroll(geom(500, 300, 2000), Source{Len: 10, HasToken: false})
	require.Equal(t, PhaseExhausted, c.Phase())
	c.OnScroll(geom(500, 300, 2000), Source{Len: 10, HasToken: true})
	require.Equal(t, PhaseIdle, c.Phase())
}

func TestResetRestoresInitialWindow(t *testing.T) {
	c := New(Options{InitialWindow: 5})
	c.OnScroll(geom(0, 300, 100), Source{Len: 3, HasToken: true})
	c.Reset()
	require.Equal(t, State{WindowCap: 5}, c.State())
	require.Equal(t, "exhausted", c.Phase().String())
}

func TestWindowCapMonotonicAndSingleFetch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := New(Options{
			PageSize:      rapid.IntRange(1, 30).Draw(rt, "page"),
			InitialWindow: rapid.IntRange(1, 30).Draw(rt, "initial"),
		})
		length := rapid.IntRange(0, 100).Draw(rt, "len")
		inFlight := 0
		prevCap := c.WindowCap()

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			g := geom(rapid.IntRange(0, 600).Draw(rt, "top"), 300, rapid.IntRange(0, 3000).Draw(rt, "content"))
			src := Source{Len: length, HasToken: rapid.Bool().Draw(rt, "token")}

			var step Step
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				step = c.OnScroll(g, src)
			case 1:
				step = c.OnRendered(g, src).Step
			case 2:
				if inFlight > 0 {
					inFlight--
					var err error
					if rapid.Bool().Draw(rt, "fail") {
						err = errors.New("boom")
					} else {
						length += rapid.IntRange(0, 25).Draw(rt, "fetched")
					}
					c.FetchCompleted(err)
				}
			}
			if step.Action == ActionFetchRemote {
				inFlight++
			}
			require.LessOrEqual(rt, inFlight, 1)
			require.GreaterOrEqual(rt, c.WindowCap(), prevCap)
			prevCap = c.WindowCap()
		}
	})
}
