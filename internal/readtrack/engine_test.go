package readtrack

import (
	"testing"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
	"pgregory.net/rapid"

	"github.com/tOgg1/roomview/internal/models"
)

const me id.UserID = "@me:test"

func timeline() models.Timeline {
	return models.Timeline{Events: []models.Event{
		{ID: "$0", Sender: "@other:test", Type: event.EventMessage},
		{ID: "$1", Sender: "@other:test", Type: event.EventMessage},
		{ID: "$2", Sender: me, Type: event.EventMessage},
		{ID: "$3", Sender: "@other:test", Type: event.EventMessage},
	}}
}

// Tiles are 10 rows tall and stacked in timeline order.
func stacked(scrollTop, viewport int, ids ...id.EventID) models.Geometry {
	g := models.Geometry{ScrollTop: scrollTop, ViewportHeight: viewport, Extents: map[id.EventID]models.Extent{}}
	for i, evID := range ids {
		g.Extents[evID] = models.Extent{Top: i * 10, Bottom: i*10 + 10}
	}
	g.ContentHeight = len(ids) * 10
	return g
}

func TestLastSeenSkipsOwnAndPartiallyVisible(t *testing.T) {
	e := New(me, nil)
	tl := timeline()

	// Viewport bottom at 35: $3 (30..40) is cut off, $2 is ours.
	idx, ok := e.LastSeenIndex(tl, stacked(0, 35, "$0", "$1", "$2", "$3"))
	require.True(t, ok)
	require.Equal(t, 1, idx)

	idx, ok = e.LastSeenIndex(tl, stacked(0, 41, "$0", "$1", "$2", "$3"))
	require.True(t, ok)
	require.Equal(t, 3, idx)
}

func TestLastSeenWithoutGeometryHasNoResult(t *testing.T) {
	e := New(me, nil)
	_, ok := e.LastSeenIndex(timeline(), models.Geometry{ViewportHeight: 100})
	require.False(t, ok)

	_, ok = e.NextReceipt(timeline(), models.Geometry{ViewportHeight: 100}, "")
	require.False(t, ok)
}

func TestNextReceiptOnlyAdvances(t *testing.T) {
	e := New(me, nil)
	tl := timeline()
	g := stacked(0, 35, "$0", "$1", "$2", "$3")

	ev, ok := e.NextReceipt(tl, g, "$0")
	require.True(t, ok)
	require.Equal(t, id.EventID("$1"), ev.ID)
	require.Equal(t, 1, e.State().LastReceiptIndex)

	// Same position again: no redundant receipt even before the store catches up.
	_, ok = e.NextReceipt(tl, g, "$0")
	require.False(t, ok)

	// Store already acknowledged a newer event: never regress.
	_, ok = e.NextReceipt(tl, stacked(0, 41, "$0", "$1", "$2", "$3"), "$3")
	require.False(t, ok)
}

func TestNextReceiptSurvivesPrepend(t *testing.T) {
	e := New(me, nil)
	tl := timeline()
	_, ok := e.NextReceipt(tl, stacked(0, 41, "$0", "$1", "$2", "$3"), "")
	require.True(t, ok)

	prepended := models.Timeline{Events: append([]models.Event{
		{ID: "$-2", Sender: "@other:test"},
		{ID: "$-1", Sender: "@other:test"},
	}, tl.Events...)}
	_, ok = e.NextReceipt(prepended, stacked(0, 61, "$-2", "$-1", "$0", "$1", "$2", "$3"), "")
	require.False(t, ok)
}

func TestReceiptFailedAllowsRetry(t *testing.T) {
	e := New(me, nil)
	tl := timeline()
	g := stacked(0, 41, "$0", "$1", "$2", "$3")

	ev, ok := e.NextReceipt(tl, g, "")
	require.True(t, ok)
	e.ReceiptFailed(ev.ID)
	require.Equal(t, id.EventID(""), e.State().LastReceiptEventID)

	again, ok := e.NextReceipt(tl, g, "")
	require.True(t, ok)
	require.Equal(t, ev.ID, again.ID)
}

func TestUnreadCounting(t *testing.T) {
	e := New(me, nil)
	other := models.Event{ID: "$x", Sender: "@other:test", Type: event.EventMessage}
	own := models.Event{ID: "$y", Sender: me, Type: event.EventMessage}
	member := models.Event{ID: "$z", Sender: "@other:test", Type: event.StateMember}

	e.OnLiveEvent(other, false)
	e.OnLiveEvent(own, false)
	e.OnLiveEvent(member, false)
	e.OnLiveEvent(other, false)
	require.Equal(t, 2, e.UnreadCount())

	e.OnTimelineUpdate(false)
	require.Equal(t, 2, e.UnreadCount())
	e.OnTimelineUpdate(true)
	require.Equal(t, 0, e.UnreadCount())
}

func TestUnreadResetProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := New(me, nil)
		atBottom := rapid.Bool().Draw(rt, "atBottom")
		n := rapid.IntRange(0, 50).Draw(rt, "n")
		expected := 0
		for i := 0; i < n; i++ {
			ev := models.Event{ID: "$e", Sender: "@other:test", Type: event.EventMessage}
			e.OnLiveEvent(ev, atBottom)
			if !atBottom {
				expected++
			}
			require.Equal(rt, expected, e.UnreadCount())
		}
	})
}
