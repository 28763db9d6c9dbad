package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
)

// SendReadReceipt stores a receipt for the local user. Receipts never move backwards.
func (c *LocalClient) SendReadReceipt(ctx context.Context, ev models.Event) error {
	if c.SyncState().ConnectionLost() {
		return ErrNotConnected
	}
	changed, err := c.rooms.SetReceipt(ctx, ev.RoomID, c.own, ev.ID)
	if err != nil {
		return fmt.Errorf("send read receipt: %w", err)
	}
	if changed {
		c.pub.Publish(ctx, &events.RoomEvent{Kind: events.KindReceipt, RoomID: ev.RoomID, Event: &ev})
	}
	return nil
}

// ReadUpTo returns the event a user has read up to.
func (c *LocalClient) ReadUpTo(roomID id.RoomID, userID id.UserID) id.EventID {
	eventID, err := c.rooms.Receipt(context.Background(), roomID, userID)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to read receipt")
		return ""
	}
	return eventID
}

// Member returns a user's membership.
func (c *LocalClient) Member(roomID id.RoomID, userID id.UserID) models.MemberInfo {
	info, err := c.rooms.Membership(context.Background(), roomID, userID)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to read membership")
		return models.MemberInfo{Membership: event.MembershipLeave}
	}
	return info
}

// Rooms lists the known rooms in display order.
func (c *LocalClient) Rooms(ctx context.Context) ([]db.Room, error) {
	return c.rooms.List(ctx)
}

// RoomName returns the stored name, falling back to the room id.
func (c *LocalClient) RoomName(roomID id.RoomID) string {
	room, err := c.rooms.Get(context.Background(), roomID)
	if err != nil || room.Name == "" {
		return roomID.String()
	}
	return room.Name
}

// Join joins a room the local user is invited to or has left.
func (c *LocalClient) Join(ctx context.Context, roomID id.RoomID) error {
	if c.SyncState().ConnectionLost() {
		return ErrNotConnected
	}
	info := c.Member(roomID, c.own)
	switch info.Membership {
	case event.MembershipJoin:
		return nil
	case event.MembershipBan:
		return ErrForbidden
	}
	return c.Ingest(ctx, c.memberEvent(roomID, event.MembershipJoin))
}

// Leave leaves a room or rejects a pending invite.
func (c *LocalClient) Leave(ctx context.Context, roomID id.RoomID) error {
	if c.SyncState().ConnectionLost() {
		return ErrNotConnected
	}
	info := c.Member(roomID, c.own)
	if info.Membership == event.MembershipLeave || info.Membership == event.MembershipBan {
		return ErrNotInvited
	}
	return c.Ingest(ctx, c.memberEvent(roomID, event.MembershipLeave))
}

func (c *LocalClient) memberEvent(roomID id.RoomID, membership event.Membership) models.Event {
	key := c.own.String()
	content, _ := json.Marshal(event.MemberEventContent{Membership: membership})
	return models.Event{
		ID:          localEventID(),
		RoomID:      roomID,
		Type:        event.StateMember,
		StateKey:    &key,
		Sender:      c.own,
		TimestampMs: time.Now().UnixMilli(),
		Content:     content,
	}
}

// Send stores a local echo as sending, then settles it as sent, or as
// not_sent while disconnected. Both transitions are published.
func (c *LocalClient) Send(ctx context.Context, roomID id.RoomID, body string) (models.Event, error) {
	if strings.TrimSpace(body) == "" {
		return models.Event{}, ErrEmptyMessage
	}
	content, _ := json.Marshal(event.MessageEventContent{MsgType: event.MsgText, Body: body})
	ev := models.Event{
		ID:          localEventID(),
		RoomID:      roomID,
		Type:        event.EventMessage,
		Sender:      c.own,
		TimestampMs: time.Now().UnixMilli(),
		Content:     content,
		SendStatus:  models.SendStatusSending,
		TxnID:       uuid.NewString(),
	}
	if err := c.Ingest(ctx, ev); err != nil {
		return ev, err
	}

	status, sendErr := models.SendStatusSent, error(nil)
	if c.SyncState().ConnectionLost() {
		status, sendErr = models.SendStatusNotSent, ErrNotConnected
	}
	if err := c.setSendStatus(ctx, &ev, status); err != nil {
		return ev, err
	}
	return ev, sendErr
}

// Resend retries an unsent event.
func (c *LocalClient) Resend(ctx context.Context, ev models.Event) error {
	if ev.SendStatus != models.SendStatusNotSent {
		return nil
	}
	if c.SyncState().ConnectionLost() {
		return ErrNotConnected
	}
	if err := c.setSendStatus(ctx, &ev, models.SendStatusSent); err != nil {
		return fmt.Errorf("resend %s: %w", ev.ID, err)
	}
	return nil
}

// setSendStatus persists a send status, mirrors it into the resident window
// and publishes the change.
func (c *LocalClient) setSendStatus(ctx context.Context, ev *models.Event, status models.SendStatus) error {
	if err := c.events.UpdateSendStatus(ctx, ev.ID, status); err != nil {
		return err
	}
	ev.SendStatus = status
	c.mu.Lock()
	if room, ok := c.resident[ev.RoomID]; ok {
		for i := range room.events {
			if room.events[i].ID == ev.ID {
				room.events[i].SendStatus = status
				break
			}
		}
	}
	c.mu.Unlock()

	published := *ev
	c.pub.Publish(ctx, &events.RoomEvent{Kind: events.KindSendStatus, RoomID: ev.RoomID, Event: &published})
	return nil
}

// SetTyping replaces the typing list for a room.
func (c *LocalClient) SetTyping(ctx context.Context, roomID id.RoomID, users []id.UserID) error {
	room, err := c.room(ctx, roomID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	room.typing = append([]id.UserID(nil), users...)
	c.mu.Unlock()
	c.pub.Publish(ctx, &events.RoomEvent{Kind: events.KindTyping, RoomID: roomID})
	return nil
}

// TypingUsers lists other users typing in a room.
func (c *LocalClient) TypingUsers(roomID id.RoomID) []id.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.resident[roomID]
	if !ok {
		return nil
	}
	var users []id.UserID
	for _, user := range room.typing {
		if user != c.own {
			users = append(users, user)
		}
	}
	return users
}

func localEventID() id.EventID {
	return id.EventID("$" + uuid.NewString())
}
