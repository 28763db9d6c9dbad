package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
)

const (
	defaultInitialLoad  = 20
	defaultSearchLimit  = 100
	defaultCacheCleanup = 5 * time.Minute
)

// Options configures a LocalClient.
type Options struct {
	Logger *zerolog.Logger

	// InitialLoad is how many events are made resident when a room is first read.
	InitialLoad int

	SearchCacheTTL time.Duration
	ContextLimit   int
	SearchLimit    int

	// Publisher receives room notifications; a private one is created when nil.
	Publisher *events.InMemoryPublisher
}

// LocalClient implements Client on top of the sqlite history store. Events
// written to the store by other processes are picked up by Sync.
type LocalClient struct {
	own      id.UserID
	log      zerolog.Logger
	events   *db.EventRepository
	rooms    *db.RoomRepository
	pub      *events.InMemoryPublisher
	searches *gocache.Cache

	initialLoad  int
	contextLimit int
	searchLimit  int

	mu        sync.RWMutex
	resident  map[id.RoomID]*roomState
	syncState models.SyncState
}

type roomState struct {
	events    []models.Event
	oldestPos int64
	newestPos int64
	hasMore   bool
	typing    []id.UserID
}

// NewLocalClient creates a client for the local user.
func NewLocalClient(database *db.DB, own id.UserID, opts Options) *LocalClient {
	c := &LocalClient{
		own:          own,
		log:          zerolog.Nop(),
		events:       db.NewEventRepository(database),
		rooms:        db.NewRoomRepository(database),
		pub:          opts.Publisher,
		initialLoad:  opts.InitialLoad,
		contextLimit: opts.ContextLimit,
		searchLimit:  opts.SearchLimit,
		resident:     make(map[id.RoomID]*roomState),
		syncState:    models.SyncPrepared,
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "session").Logger()
	}
	if c.pub == nil {
		c.pub = events.NewInMemoryPublisher()
	}
	if c.initialLoad <= 0 {
		c.initialLoad = defaultInitialLoad
	}
	if c.searchLimit <= 0 {
		c.searchLimit = defaultSearchLimit
	}
	if c.contextLimit < 0 {
		c.contextLimit = 0
	}
	if opts.SearchCacheTTL > 0 {
		c.searches = gocache.New(opts.SearchCacheTTL, defaultCacheCleanup)
	}
	return c
}

// UserID is the local user.
func (c *LocalClient) UserID() id.UserID { return c.own }

// Publisher exposes the notification hub.
func (c *LocalClient) Publisher() *events.InMemoryPublisher { return c.pub }

// Subscribe delivers notifications for a room.
func (c *LocalClient) Subscribe(roomID id.RoomID) (*events.Subscription, error) {
	return c.pub.SubscribeChan(events.Filter{RoomID: roomID})
}

// Timeline returns the resident timeline, loading the newest page on first use.
func (c *LocalClient) Timeline(roomID id.RoomID) models.Timeline {
	room, err := c.room(context.Background(), roomID)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to load timeline")
		return models.Timeline{RoomID: roomID}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	tl := models.Timeline{RoomID: roomID, Events: append([]models.Event(nil), room.events...)}
	if room.hasMore {
		tl.PaginationToken = "s" + strconv.FormatInt(room.oldestPos, 10)
	}
	return tl
}

func (c *LocalClient) room(ctx context.Context, roomID id.RoomID) (*roomState, error) {
	c.mu.RLock()
	room, ok := c.resident[roomID]
	c.mu.RUnlock()
	if ok {
		return room, nil
	}

	page, err := c.events.Latest(ctx, roomID, c.initialLoad)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if room, ok := c.resident[roomID]; ok {
		return room, nil
	}
	room = &roomState{hasMore: page.HasMore}
	for _, stored := range page.Events {
		room.events = append(room.events, stored.Event)
	}
	if len(page.Events) > 0 {
		room.oldestPos = page.Events[0].Pos
		room.newestPos = page.Events[len(page.Events)-1].Pos
	}
	c.resident[roomID] = room
	return room, nil
}

// FetchOlderEvents prepends a page of history from the store.
func (c *LocalClient) FetchOlderEvents(ctx context.Context, roomID id.RoomID, limit int) error {
	room, err := c.room(ctx, roomID)
	if err != nil {
		return err
	}

	c.mu.RLock()
	hasMore, before := room.hasMore, room.oldestPos
	c.mu.RUnlock()
	if !hasMore {
		return nil
	}

	page, err := c.events.Before(ctx, roomID, before, limit)
	if err != nil {
		return fmt.Errorf("fetch older events: %w", err)
	}

	older := make([]models.Event, 0, len(page.Events))
	for _, stored := range page.Events {
		older = append(older, stored.Event)
	}

	c.mu.Lock()
	// Another fetch may have raced ahead; only prepend when still contiguous.
	if room.oldestPos == before {
		room.events = append(older, room.events...)
		room.hasMore = page.HasMore
		if len(page.Events) > 0 {
			room.oldestPos = page.Events[0].Pos
		}
	} else {
		older = nil
	}
	c.mu.Unlock()

	for i := len(older) - 1; i >= 0; i-- {
		ev := older[i]
		c.pub.Publish(ctx, &events.RoomEvent{Kind: events.KindTimeline, RoomID: roomID, Event: &ev, ToStart: true})
	}
	c.log.Debug().Str("room_id", roomID.String()).Int("count", len(older)).Bool("has_more", page.HasMore).Msg("fetched history")
	return nil
}

// Ingest stores an event as if it arrived from the server and applies its
// side effects on memberships and room names.
func (c *LocalClient) Ingest(ctx context.Context, ev models.Event) error {
	if _, err := c.events.Append(ctx, &ev); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return nil
		}
		return err
	}
	if ev.Is(event.EventMessage) {
		c.InvalidateSearches()
	}
	if err := c.applyState(ctx, ev); err != nil {
		return err
	}
	return c.catchUp(ctx, ev.RoomID)
}

func (c *LocalClient) applyState(ctx context.Context, ev models.Event) error {
	switch {
	case ev.IsMembership() && ev.StateKey != nil:
		info := models.MemberInfo{Membership: ev.Membership()}
		if info.Membership == event.MembershipInvite {
			info.InvitedBy = ev.Sender
		}
		return c.rooms.SetMembership(ctx, ev.RoomID, id.UserID(*ev.StateKey), info)
	case ev.Is(event.StateRoomName):
		existing, err := c.rooms.Get(ctx, ev.RoomID)
		order := 0
		if err == nil {
			order = existing.Order
		}
		return c.rooms.Upsert(ctx, db.Room{ID: ev.RoomID, Name: ev.ContentString("name"), Order: order})
	}
	return nil
}

// catchUp appends every stored event newer than the resident tail and
// publishes each as a live event. Rooms that are not resident are skipped.
func (c *LocalClient) catchUp(ctx context.Context, roomID id.RoomID) error {
	c.mu.RLock()
	room, ok := c.resident[roomID]
	var after int64
	if ok {
		after = room.newestPos
	}
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	newer, err := c.events.Since(ctx, roomID, after)
	if err != nil {
		return err
	}
	if len(newer) == 0 {
		return nil
	}

	var fresh []models.Event
	c.mu.Lock()
	for _, stored := range newer {
		if stored.Pos <= room.newestPos {
			continue
		}
		room.events = append(room.events, stored.Event)
		room.newestPos = stored.Pos
		if room.oldestPos == 0 {
			room.oldestPos = stored.Pos
		}
		fresh = append(fresh, stored.Event)
	}
	c.mu.Unlock()

	for i := range fresh {
		if fresh[i].Is(event.EventMessage) {
			c.InvalidateSearches()
			break
		}
	}
	for i := range fresh {
		ev := fresh[i]
		c.pub.Publish(ctx, &events.RoomEvent{Kind: events.KindTimeline, RoomID: roomID, Event: &ev})
		if ev.IsMembership() {
			c.pub.Publish(ctx, &events.RoomEvent{Kind: events.KindMembership, RoomID: roomID, Event: &ev})
		}
	}
	return nil
}

// Sync pulls events other writers appended to the store for resident rooms.
func (c *LocalClient) Sync(ctx context.Context) error {
	c.mu.RLock()
	rooms := make([]id.RoomID, 0, len(c.resident))
	for roomID := range c.resident {
		rooms = append(rooms, roomID)
	}
	c.mu.RUnlock()

	for _, roomID := range rooms {
		if err := c.catchUp(ctx, roomID); err != nil {
			c.SetSyncState(models.SyncError)
			return err
		}
	}
	if c.SyncState() != models.SyncSyncing {
		c.SetSyncState(models.SyncSyncing)
	}
	return nil
}

// RunSync calls Sync every interval until ctx is done.
func (c *LocalClient) RunSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn().Err(err).Msg("sync failed")
	}
	for {
		select {
		case <-ctx.Done():
			c.SetSyncState(models.SyncStopped)
			return
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("sync failed")
			}
		}
	}
}

// SyncState returns the connectivity state.
func (c *LocalClient) SyncState() models.SyncState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncState
}

// SetSyncState changes the connectivity state and notifies every subscriber.
func (c *LocalClient) SetSyncState(state models.SyncState) {
	c.mu.Lock()
	changed := c.syncState != state
	c.syncState = state
	c.mu.Unlock()
	if changed {
		c.pub.Publish(context.Background(), &events.RoomEvent{Kind: events.KindSync, SyncState: state})
	}
}
