// Package models defines the room timeline data model shared by the reducer,
// pagination, read-tracking and orchestration layers.
package models

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// SendStatus tracks the local delivery state of an event.
type SendStatus string

const (
	SendStatusSent    SendStatus = "sent"
	SendStatusSending SendStatus = "sending"
	SendStatusNotSent SendStatus = "not_sent"
)

// Event is an immutable timeline entry. Identity is ID; ordering is the
// position in the owning Timeline, not TimestampMs.
type Event struct {
	ID          id.EventID      `json:"event_id"`
	RoomID      id.RoomID       `json:"room_id"`
	Type        event.Type      `json:"type"`
	StateKey    *string         `json:"state_key,omitempty"`
	Sender      id.UserID       `json:"sender,omitempty"`
	TimestampMs int64           `json:"origin_server_ts"`
	Content     json.RawMessage `json:"content,omitempty"`
	SendStatus  SendStatus      `json:"send_status,omitempty"`
	TxnID       string          `json:"txn_id,omitempty"`
}

// Time returns the origin timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TimestampMs)
}

// Is compares the event type by name; the type class is not part of the wire form.
func (e Event) Is(t event.Type) bool {
	return e.Type.Type == t.Type
}

// IsState reports whether the event carries a state key.
func (e Event) IsState() bool {
	return e.StateKey != nil
}

// IsMembership reports whether the event is an m.room.member event.
func (e Event) IsMembership() bool {
	return e.Is(event.StateMember)
}

// Body returns content.body, or "" when absent.
func (e Event) Body() string {
	if len(e.Content) == 0 {
		return ""
	}
	return gjson.GetBytes(e.Content, "body").String()
}

// Membership returns content.membership for member events.
func (e Event) Membership() event.Membership {
	if len(e.Content) == 0 {
		return ""
	}
	return event.Membership(gjson.GetBytes(e.Content, "membership").String())
}

// ContentString returns an arbitrary content field by gjson path.
func (e Event) ContentString(path string) string {
	if len(e.Content) == 0 {
		return ""
	}
	return gjson.GetBytes(e.Content, path).String()
}

// MemberInfo is the current user's membership in a room.
type MemberInfo struct {
	Membership event.Membership
	InvitedBy  id.UserID
}

// SyncState is the session client's connectivity state.
type SyncState string

const (
	SyncPrepared     SyncState = "PREPARED"
	SyncSyncing      SyncState = "SYNCING"
	SyncReconnecting SyncState = "RECONNECTING"
	SyncError        SyncState = "ERROR"
	SyncStopped      SyncState = "STOPPED"
)

// ConnectionLost reports whether the state should surface the connectivity bar.
func (s SyncState) ConnectionLost() bool {
	return s == SyncError
}
