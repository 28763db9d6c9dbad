package models

import "maunium.net/go/mautrix/id"

// Timeline is an ordered snapshot of one room's resident events.
// PaginationToken is empty when no further history exists.
type Timeline struct {
	RoomID          id.RoomID
	Events          []Event
	PaginationToken string
}

func (t Timeline) Len() int { return len(t.Events) }

// HasMoreHistory reports whether older events can still be fetched.
func (t Timeline) HasMoreHistory() bool { return t.PaginationToken != "" }

// IndexOf returns the position of the event or -1.
func (t Timeline) IndexOf(eventID id.EventID) int {
	if eventID == "" {
		return -1
	}
	for i := range t.Events {
		if t.Events[i].ID == eventID {
			return i
		}
	}
	return -1
}

// Unsent returns events whose send failed.
func (t Timeline) Unsent() []Event {
	var out []Event
	for _, ev := range t.Events {
		if ev.SendStatus == SendStatusNotSent {
			out = append(out, ev)
		}
	}
	return out
}

// Clone copies the event slice so callers can hold the snapshot.
func (t Timeline) Clone() Timeline {
	out := t
	out.Events = append([]Event(nil), t.Events...)
	return out
}
