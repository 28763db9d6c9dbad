package tiles

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
	"pgregory.net/rapid"

	"github.com/tOgg1/roomview/internal/models"
)

var day1 = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

func msg(eventID id.EventID, sender id.UserID, at time.Time) models.Event {
	return models.Event{
		ID:          eventID,
		RoomID:      "!room:test",
		Type:        event.EventMessage,
		Sender:      sender,
		TimestampMs: at.UnixMilli(),
		Content:     []byte(`{"msgtype":"m.text","body":"` + string(eventID) + `"}`),
	}
}

func create(at time.Time) models.Event {
	empty := ""
	return models.Event{ID: "$create", RoomID: "!room:test", Type: event.StateCreate, StateKey: &empty, Sender: "@u1:test", TimestampMs: at.UnixMilli()}
}

func utcReducer() Reducer {
	return Reducer{Location: time.UTC}
}

func kinds(tiles []models.Tile) []models.TileKind {
	out := make([]models.TileKind, 0, len(tiles))
	for _, tile := range tiles {
		out = append(out, tile.Kind)
	}
	return out
}

func TestReduceCreateThenMessages(t *testing.T) {
	tl := models.Timeline{Events: []models.Event{
		create(day1),
		msg("$A", "@u1:test", day1.Add(time.Minute)),
		msg("$B", "@u1:test", day1.Add(2*time.Minute)),
		msg("$C", "@u2:test", day1.Add(3*time.Minute)),
	}}

	out := utcReducer().Reduce(tl, 10, "@u1:test")
	require.Equal(t, []models.TileKind{
		models.TileDateSeparator, models.TileMessage, models.TileMessage, models.TileMessage,
	}, kinds(out))

	require.Equal(t, id.EventID("$A"), out[1].EventID())
	require.False(t, out[1].Continuation)
	require.True(t, out[1].Own)
	require.Equal(t, id.EventID("$B"), out[2].EventID())
	require.True(t, out[2].Continuation)
	require.Equal(t, id.EventID("$C"), out[3].EventID())
	require.False(t, out[3].Continuation)
	require.True(t, out[3].IsLast)
	require.False(t, out[3].Own)
	require.False(t, out[2].IsLast)
}

func TestReduceDateBoundaryBreaksContinuation(t *testing.T) {
	day2 := day1.Add(24 * time.Hour)
	tl := models.Timeline{Events: []models.Event{
		create(day1),
		msg("$x", "@u2:test", day1),
		msg("$A", "@u1:test", day1.Add(time.Hour)),
		msg("$B", "@u1:test", day2),
	}}

	out := utcReducer().Reduce(tl, 10, "")
	separators := 0
	for i, tile := range out {
		if tile.Kind != models.TileDateSeparator {
			continue
		}
		separators++
		if i+1 < len(out) {
			require.False(t, out[i+1].Continuation)
		}
	}
	// One for the first event after creation, one for the day change.
	require.Equal(t, 2, separators)
	last := out[len(out)-1]
	require.Equal(t, id.EventID("$B"), last.EventID())
	require.False(t, last.Continuation)
	require.Equal(t, models.TileDateSeparator, out[len(out)-2].Kind)
	require.Equal(t, 2026, out[len(out)-2].Timestamp.Year())
}

func TestReduceWindowCapKeepsNewest(t *testing.T) {
	events := []models.Event{create(day1)}
	for i := 1; i <= 30; i++ {
		events = append(events, msg(id.EventID(fmt.Sprintf("$%02d", i)), "@u1:test", day1.Add(time.Duration(i)*time.Second)))
	}
	out := utcReducer().Reduce(models.Timeline{Events: events}, 5, "")
	require.Len(t, out, 5)
	require.Equal(t, id.EventID("$26"), out[0].EventID())
	// The oldest tile in a truncated window has no predecessor to continue.
	require.False(t, out[0].Continuation)
	require.True(t, out[1].Continuation)
	require.True(t, out[4].IsLast)
}

func TestReduceSkipsEventsWithoutTiles(t *testing.T) {
	empty := ""
	power := models.Event{ID: "$pl", Type: event.StatePowerLevels, StateKey: &empty, Sender: "@u1:test", TimestampMs: day1.Add(2 * time.Minute).UnixMilli()}
	tl := models.Timeline{Events: []models.Event{
		create(day1),
		msg("$A", "@u1:test", day1.Add(time.Minute)),
		power,
		msg("$B", "@u1:test", day1.Add(3*time.Minute)),
		power,
	}}
	tl.Events[4].ID = "$pl2"

	out := utcReducer().Reduce(tl, 10, "")
	require.Equal(t, []models.TileKind{models.TileDateSeparator, models.TileMessage, models.TileMessage}, kinds(out))
	require.True(t, out[2].Continuation)
	// The final event in the timeline has no tile, so nothing is last.
	for _, tile := range out {
		require.False(t, tile.IsLast)
	}
}

func TestReduceSenderlessEventsNeverContinue(t *testing.T) {
	tl := models.Timeline{Events: []models.Event{
		create(day1),
		{ID: "$n1", Type: event.StateTopic, TimestampMs: day1.Add(time.Minute).UnixMilli()},
		{ID: "$n2", Type: event.StateTopic, TimestampMs: day1.Add(2 * time.Minute).UnixMilli()},
	}}
	out := utcReducer().Reduce(tl, 10, "")
	require.Len(t, out, 3)
	require.False(t, out[2].Continuation)
}

func TestReduceTypeChangeBreaksContinuation(t *testing.T) {
	member := msg("$m", "@u1:test", day1.Add(2*time.Minute))
	member.Type = event.StateMember
	tl := models.Timeline{Events: []models.Event{
		create(day1),
		msg("$A", "@u1:test", day1.Add(time.Minute)),
		member,
	}}
	out := utcReducer().Reduce(tl, 10, "")
	require.False(t, out[len(out)-1].Continuation)
}

func TestReduceEmptyInputs(t *testing.T) {
	require.Nil(t, utcReducer().Reduce(models.Timeline{}, 10, ""))
	require.Nil(t, utcReducer().Reduce(models.Timeline{Events: []models.Event{create(day1)}}, 0, ""))
}

func TestReduceIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(rt, "n")
		windowCap := rapid.IntRange(0, 80).Draw(rt, "cap")
		senders := []id.UserID{"@a:test", "@b:test", ""}
		events := make([]models.Event, 0, n)
		at := day1
		for i := 0; i < n; i++ {
			at = at.Add(time.Duration(rapid.IntRange(0, 36).Draw(rt, "hours")) * time.Hour)
			sender := senders[rapid.IntRange(0, len(senders)-1).Draw(rt, "sender")]
			events = append(events, msg(id.EventID(fmt.Sprintf("$%d", i)), sender, at))
		}
		tl := models.Timeline{Events: events}
		r := utcReducer()

		first := r.Reduce(tl, windowCap, "@a:test")
		second := r.Reduce(tl, windowCap, "@a:test")
		require.Equal(rt, first, second)

		messages := 0
		for i, tile := range first {
			if tile.Kind == models.TileMessage {
				messages++
			}
			if tile.Kind == models.TileDateSeparator && i+1 < len(first) {
				require.False(rt, first[i+1].Continuation)
			}
		}
		require.LessOrEqual(rt, messages, windowCap)
	})
}

func TestSearchProjectionOrdersGroupsAndResults(t *testing.T) {
	older := msg("$old", "@u1:test", day1)
	newer := msg("$new", "@u2:test", day1.Add(time.Hour))
	before := msg("$before", "@u3:test", day1.Add(-time.Minute))
	empty := ""
	hidden := models.Event{ID: "$hidden", Type: event.StatePowerLevels, StateKey: &empty}
	other := msg("$other", "@u1:test", day1.Add(2*time.Hour))

	res := models.SearchResults{
		Term:  "hello",
		Scope: models.SearchScopeAll,
		Groups: []models.SearchGroup{
			{RoomID: "!b:test", Order: 2, Results: []models.SearchResult{{Event: other}}},
			{RoomID: "!a:test", RoomName: "Alpha", Order: 1, Results: []models.SearchResult{
				{Event: older, Before: []models.Event{before}},
				{Event: newer, After: []models.Event{hidden}},
			}},
		},
		Highlights: []string{"he", "hello", "hel"},
	}

	out := utcReducer().Search(res, "@u1:test")
	require.Equal(t, []models.TileKind{
		models.TileRoomHeader,
		models.TileDateSeparator, models.TileMessage,
		models.TileDateSeparator, models.TileContextual, models.TileMessage,
		models.TileRoomHeader,
		models.TileDateSeparator, models.TileMessage,
	}, kinds(out))
	require.Equal(t, "Alpha", out[0].RoomName)
	require.Equal(t, id.EventID("$new"), out[2].EventID())
	require.Equal(t, id.EventID("$before"), out[4].EventID())
	require.Equal(t, id.EventID("$old"), out[5].EventID())
	require.True(t, out[5].Own)
	require.Equal(t, []string{"hello", "hel", "he"}, out[5].Highlights)
	require.Equal(t, "!b:test", out[6].RoomName)
}

func TestSearchProjectionRoomScopeHasNoHeaders(t *testing.T) {
	res := models.SearchResults{
		Term:   "x",
		Scope:  models.SearchScopeRoom,
		Groups: []models.SearchGroup{{RoomID: "!a:test", Results: []models.SearchResult{{Event: msg("$1", "@u:test", day1)}}}},
	}
	out := utcReducer().Search(res, "")
	require.Equal(t, []models.TileKind{models.TileDateSeparator, models.TileMessage}, kinds(out))
	require.Equal(t, []string{"x"}, out[1].Highlights)
	require.Equal(t, "1770631200000-search", out[0].Key)
}

func TestSortHighlights(t *testing.T) {
	require.Nil(t, SortHighlights(nil, ""))
	require.Equal(t, []string{"term"}, SortHighlights(nil, "term"))
	require.Equal(t, []string{"abc", "ab", "a"}, SortHighlights([]string{"a", "abc", "ab", "a", ""}, "term"))
}
