package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// Event repository errors.
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrDuplicateEvent = errors.New("event already stored")
)

const defaultPageLimit = 20

// EventRepository stores room events in stream order.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// StoredEvent pairs an event with its stream position.
type StoredEvent struct {
	Pos   int64
	Event models.Event
}

// EventPage is a contiguous run of a room's events, oldest first.
type EventPage struct {
	Events []StoredEvent
	// HasMore reports whether older events exist before the page.
	HasMore bool
}

// OldestPos returns the stream position of the first event, or 0.
func (p EventPage) OldestPos() int64 {
	if len(p.Events) == 0 {
		return 0
	}
	return p.Events[0].Pos
}

// Append stores an event and returns its stream position.
func (r *EventRepository) Append(ctx context.Context, ev *models.Event) (int64, error) {
	if ev == nil {
		return 0, fmt.Errorf("event is required")
	}
	if ev.SendStatus == "" {
		ev.SendStatus = models.SendStatusSent
	}
	if err := ev.Validate(); err != nil {
		return 0, err
	}

	var stateKey any
	if ev.StateKey != nil {
		stateKey = *ev.StateKey
	}
	content := string(ev.Content)
	if content == "" {
		content = "{}"
	}

	res, err := r.db.execWithRetry(ctx, `
		INSERT INTO events (
			event_id, room_id, type, state_key, sender, origin_ts, content_json, body, send_status, txn_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`,
		ev.ID.String(),
		ev.RoomID.String(),
		ev.Type.Type,
		stateKey,
		ev.Sender.String(),
		ev.TimestampMs,
		content,
		ev.Body(),
		string(ev.SendStatus),
		ev.TxnID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrDuplicateEvent
	}
	return res.LastInsertId()
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, eventID id.EventID) (*StoredEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, eventID.String())
	stored, err := scanStoredEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return stored, err
}

// Latest returns the newest limit events of a room, oldest first.
func (r *EventRepository) Latest(ctx context.Context, roomID id.RoomID, limit int) (EventPage, error) {
	return r.Before(ctx, roomID, 0, limit)
}

// Before returns up to limit events older than the stream position
// beforePos, oldest first. A beforePos of 0 means "from the end".
func (r *EventRepository) Before(ctx context.Context, roomID id.RoomID, beforePos int64, limit int) (EventPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE room_id = ?`
	args := []any{roomID.String()}
	if beforePos > 0 {
		query += ` AND stream_pos < ?`
		args = append(args, beforePos)
	}
	query += ` ORDER BY stream_pos DESC LIMIT ?`
	args = append(args, limit+1) // one extra to learn whether older rows exist

	events, err := r.query(ctx, query, args...)
	if err != nil {
		return EventPage{}, err
	}

	page := EventPage{}
	if len(events) > limit {
		page.HasMore = true
		events = events[:limit]
	}
	reverse(events)
	page.Events = events
	return page, nil
}

// UpdateSendStatus records a new local send status for an event.
func (r *EventRepository) UpdateSendStatus(ctx context.Context, eventID id.EventID, status models.SendStatus) error {
	res, err := r.db.execWithRetry(ctx,
		`UPDATE events SET send_status = ? WHERE event_id = ?`, string(status), eventID.String())
	if err != nil {
		return fmt.Errorf("failed to update send status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SearchQuery filters a full text search.
type SearchQuery struct {
	Term   string
	RoomID id.RoomID // empty searches all rooms
	Limit  int
}

// Search returns message events whose body contains the term, newest first.
// Matching is case-insensitive for ASCII.
func (r *EventRepository) Search(ctx context.Context, q SearchQuery) ([]StoredEvent, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE type = ? AND body LIKE ? ESCAPE '\'`
	args := []any{event.EventMessage.Type, "%" + escapeLike(term) + "%"}
	if q.RoomID != "" {
		query += ` AND room_id = ?`
		args = append(args, q.RoomID.String())
	}
	query += ` ORDER BY origin_ts DESC, stream_pos DESC LIMIT ?`
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

// Context returns up to before events preceding and after events following
// the given stream position in the same room. Both slices are nearest first.
func (r *EventRepository) Context(ctx context.Context, roomID id.RoomID, pos int64, before, after int) ([]StoredEvent, []StoredEvent, error) {
	var prev, next []StoredEvent
	var err error
	if before > 0 {
		prev, err = r.query(ctx, `SELECT `+eventColumns+` FROM events
			WHERE room_id = ? AND stream_pos < ? ORDER BY stream_pos DESC LIMIT ?`,
			roomID.String(), pos, before)
		if err != nil {
			return nil, nil, err
		}
	}
	if after > 0 {
		next, err = r.query(ctx, `SELECT `+eventColumns+` FROM events
			WHERE room_id = ? AND stream_pos > ? ORDER BY stream_pos ASC LIMIT ?`,
			roomID.String(), pos, after)
		if err != nil {
			return nil, nil, err
		}
	}
	return prev, next, nil
}

// Since returns events of a room with stream position greater than pos, oldest first.
func (r *EventRepository) Since(ctx context.Context, roomID id.RoomID, pos int64) ([]StoredEvent, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events
		WHERE room_id = ? AND stream_pos > ? ORDER BY stream_pos ASC`, roomID.String(), pos)
}

// Count returns the number of stored events in a room.
func (r *EventRepository) Count(ctx context.Context, roomID id.RoomID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE room_id = ?`, roomID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

const eventColumns = `stream_pos, event_id, room_id, type, state_key, sender, origin_ts, content_json, send_status, txn_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredEvent(row rowScanner) (*StoredEvent, error) {
	var stored StoredEvent
	var eventID, roomID, eventType, sender string
	var content, sendStatus, txnID string
	var stateKey sql.NullString
	if err := row.Scan(&stored.Pos, &eventID, &roomID, &eventType, &stateKey, &sender,
		&stored.Event.TimestampMs, &content, &sendStatus, &txnID); err != nil {
		return nil, err
	}

	ev := &stored.Event
	ev.ID = id.EventID(eventID)
	ev.RoomID = id.RoomID(roomID)
	ev.Sender = id.UserID(sender)
	ev.Content = []byte(content)
	ev.SendStatus = models.SendStatus(sendStatus)
	ev.TxnID = txnID
	if stateKey.Valid {
		key := stateKey.String
		ev.StateKey = &key
		ev.Type = event.Type{Type: eventType, Class: event.StateEventType}
	} else {
		ev.Type = event.Type{Type: eventType, Class: event.MessageEventType}
	}
	return &stored, nil
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		stored, err := scanStoredEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func reverse(events []StoredEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
