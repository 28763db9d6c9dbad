package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
)

const (
	me   id.UserID = "@me:test"
	bob  id.UserID = "@bob:test"
	room id.RoomID = "!room:test"
)

func newClient(t *testing.T, opts Options) (*LocalClient, *db.DB) {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	_, err = database.MigrateUp(context.Background())
	require.NoError(t, err)
	return NewLocalClient(database, me, opts), database
}

func msg(i int, sender id.UserID, body string) models.Event {
	content, _ := json.Marshal(map[string]string{"msgtype": "m.text", "body": body})
	return models.Event{
		ID:          id.EventID(fmt.Sprintf("$%03d", i)),
		RoomID:      room,
		Type:        event.EventMessage,
		Sender:      sender,
		TimestampMs: int64(1_700_000_000_000 + i*1000),
		Content:     content,
	}
}

func seedRoom(t *testing.T, database *db.DB, n int) {
	t.Helper()
	repo := db.NewEventRepository(database)
	for i := 0; i < n; i++ {
		ev := msg(i, bob, fmt.Sprintf("message %d", i))
		_, err := repo.Append(context.Background(), &ev)
		require.NoError(t, err)
	}
}

// drain collects delivered events until the subscription goes quiet.
func drain(sub *events.Subscription) []events.RoomEvent {
	var out []events.RoomEvent
	for {
		select {
		case ev := <-sub.C():
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestTimelineLoadsNewestPageWithToken(t *testing.T) {
	client, database := newClient(t, Options{InitialLoad: 10})
	seedRoom(t, database, 25)

	tl := client.Timeline(room)
	require.Equal(t, 10, tl.Len())
	require.True(t, tl.HasMoreHistory())
	require.Equal(t, id.EventID("$015"), tl.Events[0].ID)
	require.Equal(t, id.EventID("$024"), tl.Events[9].ID)
}

func TestFetchOlderEventsPrependsUntilExhausted(t *testing.T) {
	client, database := newClient(t, Options{InitialLoad: 10})
	seedRoom(t, database, 25)
	ctx := context.Background()

	sub, err := client.Subscribe(room)
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, 10, client.Timeline(room).Len())
	require.NoError(t, client.FetchOlderEvents(ctx, room, 10))
	tl := client.Timeline(room)
	require.Equal(t, 20, tl.Len())
	require.Equal(t, id.EventID("$005"), tl.Events[0].ID)
	require.True(t, tl.HasMoreHistory())

	got := drain(sub)
	require.Len(t, got, 10)
	for _, ev := range got {
		require.True(t, ev.ToStart)
	}

	require.NoError(t, client.FetchOlderEvents(ctx, room, 10))
	tl = client.Timeline(room)
	require.Equal(t, 25, tl.Len())
	require.False(t, tl.HasMoreHistory())

	// Nothing left: no-op.
	require.NoError(t, client.FetchOlderEvents(ctx, room, 10))
	require.Equal(t, 25, client.Timeline(room).Len())
}

func TestIngestPublishesLiveEvents(t *testing.T) {
	client, _ := newClient(t, Options{})
	ctx := context.Background()
	_ = client.Timeline(room)

	sub, err := client.Subscribe(room)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Ingest(ctx, msg(1, bob, "hi")))
	require.NoError(t, client.Ingest(ctx, msg(1, bob, "hi")), "duplicates are ignored")

	got := drain(sub)
	require.Len(t, got, 1)
	require.Equal(t, events.KindTimeline, got[0].Kind)
	require.False(t, got[0].ToStart)
	require.Equal(t, 1, client.Timeline(room).Len())
}

func TestSyncPicksUpForeignWrites(t *testing.T) {
	client, database := newClient(t, Options{})
	ctx := context.Background()
	seedRoom(t, database, 2)
	require.Equal(t, 2, client.Timeline(room).Len())

	seedMore := msg(50, bob, "from another process")
	_, err := db.NewEventRepository(database).Append(ctx, &seedMore)
	require.NoError(t, err)

	require.NoError(t, client.Sync(ctx))
	require.Equal(t, 3, client.Timeline(room).Len())
	require.Equal(t, models.SyncSyncing, client.SyncState())
}

func TestSendWhileDisconnectedIsNotSentThenResends(t *testing.T) {
	client, _ := newClient(t, Options{})
	ctx := context.Background()
	_ = client.Timeline(room)

	client.SetSyncState(models.SyncError)
	ev, err := client.Send(ctx, room, "queued")
	require.ErrorIs(t, err, ErrNotConnected)
	require.Equal(t, models.SendStatusNotSent, ev.SendStatus)
	require.NotEmpty(t, ev.TxnID)

	unsent := client.Timeline(room).Unsent()
	require.Len(t, unsent, 1)

	require.ErrorIs(t, client.Resend(ctx, unsent[0]), ErrNotConnected)

	client.SetSyncState(models.SyncSyncing)
	require.NoError(t, client.Resend(ctx, unsent[0]))
	require.Empty(t, client.Timeline(room).Unsent())

	_, err = client.Send(ctx, room, "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendPublishesSendingThenSent(t *testing.T) {
	client, _ := newClient(t, Options{})
	ctx := context.Background()
	_ = client.Timeline(room)

	sub, err := client.Subscribe(room)
	require.NoError(t, err)
	defer sub.Close()

	ev, err := client.Send(ctx, room, "hello")
	require.NoError(t, err)
	require.Equal(t, models.SendStatusSent, ev.SendStatus)

	got := drain(sub)
	require.Len(t, got, 2)
	require.Equal(t, events.KindTimeline, got[0].Kind)
	require.Equal(t, ev.ID, got[0].Event.ID)
	require.Equal(t, models.SendStatusSending, got[0].Event.SendStatus)
	require.Equal(t, events.KindSendStatus, got[1].Kind)
	require.Equal(t, models.SendStatusSent, got[1].Event.SendStatus)

	tl := client.Timeline(room)
	require.Equal(t, 1, tl.Len())
	require.Equal(t, models.SendStatusSent, tl.Events[0].SendStatus)
}

func TestSendWhileDisconnectedSettlesNotSent(t *testing.T) {
	client, _ := newClient(t, Options{})
	ctx := context.Background()
	_ = client.Timeline(room)
	client.SetSyncState(models.SyncError)

	sub, err := client.Subscribe(room)
	require.NoError(t, err)
	defer sub.Close()

	_, err = client.Send(ctx, room, "later")
	require.ErrorIs(t, err, ErrNotConnected)

	got := drain(sub)
	require.Len(t, got, 2)
	require.Equal(t, models.SendStatusSending, got[0].Event.SendStatus)
	require.Equal(t, models.SendStatusNotSent, got[1].Event.SendStatus)
}

func TestReceiptsAndMembership(t *testing.T) {
	client, database := newClient(t, Options{})
	ctx := context.Background()
	seedRoom(t, database, 3)
	tl := client.Timeline(room)

	require.NoError(t, client.SendReadReceipt(ctx, tl.Events[2]))
	require.NoError(t, client.SendReadReceipt(ctx, tl.Events[0]))
	require.Equal(t, tl.Events[2].ID, client.ReadUpTo(room, me))

	key := me.String()
	invite := models.Event{
		ID: "$invite", RoomID: room, Type: event.StateMember, StateKey: &key, Sender: bob,
		TimestampMs: 1, Content: json.RawMessage(`{"membership":"invite"}`),
	}
	require.NoError(t, client.Ingest(ctx, invite))
	info := client.Member(room, me)
	require.Equal(t, event.MembershipInvite, info.Membership)
	require.Equal(t, bob, info.InvitedBy)

	require.NoError(t, client.Join(ctx, room))
	require.Equal(t, event.MembershipJoin, client.Member(room, me).Membership)

	require.NoError(t, client.Leave(ctx, room))
	require.ErrorIs(t, client.Leave(ctx, room), ErrNotInvited)
}

func TestJoinFailsWhileDisconnected(t *testing.T) {
	client, _ := newClient(t, Options{})
	client.SetSyncState(models.SyncError)
	require.ErrorIs(t, client.Join(context.Background(), room), ErrNotConnected)
}

func TestTypingExcludesOwnUser(t *testing.T) {
	client, _ := newClient(t, Options{})
	require.NoError(t, client.SetTyping(context.Background(), room, []id.UserID{me, bob}))
	require.Equal(t, []id.UserID{bob}, client.TypingUsers(room))
}

func TestSearchGroupsAndCaches(t *testing.T) {
	client, database := newClient(t, Options{SearchCacheTTL: time.Minute, ContextLimit: 1})
	ctx := context.Background()
	_ = client.Timeline(room)
	rooms := db.NewRoomRepository(database)
	require.NoError(t, rooms.Upsert(ctx, db.Room{ID: room, Name: "General", Order: 1}))
	require.NoError(t, rooms.Upsert(ctx, db.Room{ID: "!other:test", Name: "Other", Order: 0}))

	for i, body := range []string{"before", "Hello world", "after", "later hello"} {
		require.NoError(t, client.Ingest(ctx, msg(i, bob, body)))
	}
	other := msg(10, bob, "hello from other")
	other.RoomID = "!other:test"
	require.NoError(t, client.Ingest(ctx, other))

	res, err := client.Search(ctx, models.SearchRequest{Term: "Hello", Scope: models.SearchScopeAll})
	require.NoError(t, err)
	require.Equal(t, 3, res.Count)
	require.Len(t, res.Groups, 2)
	require.Equal(t, "Other", res.Groups[0].RoomName)
	require.Equal(t, []string{"hello"}, res.Highlights)

	general := res.Groups[1]
	require.Len(t, general.Results, 2)
	hit := general.Results[1]
	require.Equal(t, id.EventID("$001"), hit.Event.ID)
	require.Equal(t, id.EventID("$000"), hit.Before[0].ID)
	require.Equal(t, id.EventID("$002"), hit.After[0].ID)

	all := models.SearchRequest{Term: "Hello", Scope: models.SearchScopeAll}

	// A write the client has not seen yet is served from the cache.
	foreign := msg(20, bob, "hello again")
	_, err = db.NewEventRepository(database).Append(ctx, &foreign)
	require.NoError(t, err)
	cached, err := client.Search(ctx, all)
	require.NoError(t, err)
	require.Equal(t, 3, cached.Count)

	// Sync picks the message up and drops cached responses.
	require.NoError(t, client.Sync(ctx))
	synced, err := client.Search(ctx, all)
	require.NoError(t, err)
	require.Equal(t, 4, synced.Count)

	// So does ingesting a message directly.
	require.NoError(t, client.Ingest(ctx, msg(21, bob, "hello once more")))
	ingested, err := client.Search(ctx, all)
	require.NoError(t, err)
	require.Equal(t, 5, ingested.Count)

	fresh, err := client.Search(ctx, models.SearchRequest{Term: "hello", Scope: models.SearchScopeRoom, RoomID: room})
	require.NoError(t, err)
	require.Equal(t, 4, fresh.Count)
	require.Len(t, fresh.Groups, 1)
}

func TestImportJSONL(t *testing.T) {
	client, _ := newClient(t, Options{})
	input := strings.Join([]string{
		`# exported room`,
		`{"event_id":"$a","type":"m.room.name","state_key":"","sender":"@bob:test","origin_server_ts":1,"content":{"name":"Imported"}}`,
		``,
		`{"event_id":"$b","type":"m.room.message","sender":"@bob:test","origin_server_ts":2,"content":{"msgtype":"m.text","body":"hi"}}`,
	}, "\n")

	n, err := client.ImportJSONL(context.Background(), strings.NewReader(input), room)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "Imported", client.RoomName(room))
	require.Equal(t, 2, client.Timeline(room).Len())

	_, err = client.ImportJSONL(context.Background(), strings.NewReader("{not json"), room)
	require.ErrorContains(t, err, "line 1")
}
