// Package session defines the session client a room view consumes and a
// local implementation backed by the history database.
package session

import (
	"context"
	"errors"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/events"
	"github.com/tOgg1/roomview/internal/models"
)

// Session errors.
var (
	ErrNotConnected = errors.New("not connected")
	ErrForbidden    = errors.New("forbidden")
	ErrNotInvited   = errors.New("no pending invite")
	ErrEmptyMessage = errors.New("message body is empty")
)

// Client is the store and transport a room view reads from and calls into.
// Read methods return snapshots and never block on the network; the
// context-taking methods are the asynchronous RPCs.
type Client interface {
	// UserID is the local user.
	UserID() id.UserID

	// Timeline returns the resident timeline of a room.
	Timeline(roomID id.RoomID) models.Timeline

	// FetchOlderEvents prepends up to limit older events to the resident timeline.
	FetchOlderEvents(ctx context.Context, roomID id.RoomID, limit int) error

	// SendReadReceipt marks ev as read by the local user.
	SendReadReceipt(ctx context.Context, ev models.Event) error

	// ReadUpTo returns the event a user has read up to, or "".
	ReadUpTo(roomID id.RoomID, userID id.UserID) id.EventID

	Join(ctx context.Context, roomID id.RoomID) error
	Leave(ctx context.Context, roomID id.RoomID) error

	Search(ctx context.Context, req models.SearchRequest) (models.SearchResults, error)

	// Send posts a text message. The local echo is returned even when the
	// send fails; its status is then not_sent.
	Send(ctx context.Context, roomID id.RoomID, body string) (models.Event, error)

	// Resend retries a not_sent event.
	Resend(ctx context.Context, ev models.Event) error

	// Member returns a user's membership in a room.
	Member(roomID id.RoomID, userID id.UserID) models.MemberInfo

	// RoomName returns the display name of a room.
	RoomName(roomID id.RoomID) string

	// TypingUsers lists users currently typing in a room, excluding the local user.
	TypingUsers(roomID id.RoomID) []id.UserID

	SyncState() models.SyncState

	// Subscribe delivers room and client-wide notifications until the
	// subscription is closed.
	Subscribe(roomID id.RoomID) (*events.Subscription, error)
}
