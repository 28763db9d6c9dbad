package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// ErrRoomNotFound is returned when a room has no stored row.
var ErrRoomNotFound = errors.New("room not found")

// Room is the stored room summary.
type Room struct {
	ID    id.RoomID
	Name  string
	Order int
}

// RoomRepository stores rooms, memberships and read receipts.
type RoomRepository struct {
	db *DB
}

// NewRoomRepository creates a new RoomRepository.
func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Upsert creates or renames a room.
func (r *RoomRepository) Upsert(ctx context.Context, room Room) error {
	if room.ID == "" {
		return models.ErrMissingRoomID
	}
	_, err := r.db.execWithRetry(ctx, `
		INSERT INTO rooms (room_id, name, sort_order) VALUES (?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET name = excluded.name, sort_order = excluded.sort_order
	`, room.ID.String(), room.Name, room.Order)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

// Get returns a stored room.
func (r *RoomRepository) Get(ctx context.Context, roomID id.RoomID) (*Room, error) {
	var room Room
	var rawID string
	err := r.db.QueryRowContext(ctx,
		`SELECT room_id, name, sort_order FROM rooms WHERE room_id = ?`, roomID.String(),
	).Scan(&rawID, &room.Name, &room.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	room.ID = id.RoomID(rawID)
	return &room, nil
}

// List returns all rooms in sort order.
func (r *RoomRepository) List(ctx context.Context) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT room_id, name, sort_order FROM rooms ORDER BY sort_order, room_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		var rawID string
		if err := rows.Scan(&rawID, &room.Name, &room.Order); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		room.ID = id.RoomID(rawID)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// SetMembership records a user's membership in a room.
func (r *RoomRepository) SetMembership(ctx context.Context, roomID id.RoomID, userID id.UserID, info models.MemberInfo) error {
	_, err := r.db.execWithRetry(ctx, `
		INSERT INTO memberships (room_id, user_id, membership, invited_by) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET membership = excluded.membership, invited_by = excluded.invited_by
	`, roomID.String(), userID.String(), string(info.Membership), info.InvitedBy.String())
	if err != nil {
		return fmt.Errorf("failed to set membership: %w", err)
	}
	return nil
}

// Membership returns a user's membership. Unknown users report leave.
func (r *RoomRepository) Membership(ctx context.Context, roomID id.RoomID, userID id.UserID) (models.MemberInfo, error) {
	var membership, invitedBy string
	err := r.db.QueryRowContext(ctx,
		`SELECT membership, invited_by FROM memberships WHERE room_id = ? AND user_id = ?`,
		roomID.String(), userID.String(),
	).Scan(&membership, &invitedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MemberInfo{Membership: event.MembershipLeave}, nil
	}
	if err != nil {
		return models.MemberInfo{}, fmt.Errorf("failed to get membership: %w", err)
	}
	return models.MemberInfo{Membership: event.Membership(membership), InvitedBy: id.UserID(invitedBy)}, nil
}

// SetReceipt stores a read receipt. The stored receipt only moves forward
// in stream order; it reports whether the row changed.
func (r *RoomRepository) SetReceipt(ctx context.Context, roomID id.RoomID, userID id.UserID, eventID id.EventID) (bool, error) {
	var pos int64
	err := r.db.QueryRowContext(ctx,
		`SELECT stream_pos FROM events WHERE event_id = ? AND room_id = ?`, eventID.String(), roomID.String(),
	).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrEventNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve receipt event: %w", err)
	}

	res, err := r.db.execWithRetry(ctx, `
		INSERT INTO receipts (room_id, user_id, event_id, stream_pos) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET event_id = excluded.event_id, stream_pos = excluded.stream_pos
		WHERE excluded.stream_pos > receipts.stream_pos
	`, roomID.String(), userID.String(), eventID.String(), pos)
	if err != nil {
		return false, fmt.Errorf("failed to set receipt: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Receipt returns the event a user has read up to, or "".
func (r *RoomRepository) Receipt(ctx context.Context, roomID id.RoomID, userID id.UserID) (id.EventID, error) {
	var eventID string
	err := r.db.QueryRowContext(ctx,
		`SELECT event_id FROM receipts WHERE room_id = ? AND user_id = ?`, roomID.String(), userID.String(),
	).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get receipt: %w", err)
	}
	return id.EventID(eventID), nil
}
