package tui

import (
	"strings"
	"testing"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

func textEvent(eventID id.EventID, sender id.UserID, body string) *models.Event {
	return &models.Event{
		ID:          eventID,
		Type:        event.EventMessage,
		Sender:      sender,
		TimestampMs: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC).UnixMilli(),
		Content:     []byte(`{"msgtype":"m.text","body":"` + body + `"}`),
		SendStatus:  models.SendStatusSent,
	}
}

func testRenderer() Renderer {
	return Renderer{Styles: NewStyles(ThemeDefault)}
}

func TestRenderMessageHeaderAndContinuation(t *testing.T) {
	r := testRenderer()
	ev := textEvent("$1", "@alice:example.org", "hello there")

	lines := r.Render(models.Tile{Kind: models.TileMessage, Event: ev}, 40)
	if len(lines) != 2 {
		t.Fatalf("expected header and body, got %q", lines)
	}
	if !strings.Contains(lines[0], "alice") {
		t.Errorf("header %q does not name the sender", lines[0])
	}
	if !strings.Contains(lines[1], "hello there") {
		t.Errorf("body %q missing text", lines[1])
	}

	lines = r.Render(models.Tile{Kind: models.TileMessage, Event: ev, Continuation: true}, 40)
	if len(lines) != 1 {
		t.Fatalf("continuation should omit the header, got %q", lines)
	}
}

func TestRenderWrapsLongBodies(t *testing.T) {
	r := testRenderer()
	ev := textEvent("$1", "@alice:example.org", strings.Repeat("word ", 20))

	lines := r.Render(models.Tile{Kind: models.TileMessage, Event: ev, Continuation: true}, 20)
	if len(lines) < 5 {
		t.Fatalf("expected wrapped body, got %d lines", len(lines))
	}
}

func TestRenderUnsentMarker(t *testing.T) {
	r := testRenderer()
	ev := textEvent("$1", "@me:example.org", "pending")
	ev.SendStatus = models.SendStatusNotSent

	lines := r.Render(models.Tile{Kind: models.TileMessage, Event: ev, Own: true}, 40)
	if !strings.Contains(lines[len(lines)-1], "not sent") {
		t.Errorf("last line %q lacks the unsent marker", lines[len(lines)-1])
	}
}

func TestRenderSystemEvents(t *testing.T) {
	r := testRenderer()
	stateKey := "@bob:example.org"
	tests := []struct {
		content string
		sender  id.UserID
		want    string
	}{
		{`{"membership":"join"}`, "@bob:example.org", "bob joined the room"},
		{`{"membership":"invite"}`, "@alice:example.org", "alice invited bob"},
		{`{"membership":"leave"}`, "@bob:example.org", "bob left the room"},
		{`{"membership":"leave"}`, "@alice:example.org", "alice removed bob"},
	}
	for _, tt := range tests {
		ev := &models.Event{ID: "$m", Type: event.StateMember, StateKey: &stateKey, Sender: tt.sender, Content: []byte(tt.content)}
		lines := r.Render(models.Tile{Kind: models.TileMessage, Event: ev}, 60)
		if len(lines) != 1 || !strings.Contains(lines[0], tt.want) {
			t.Errorf("Render(%s) = %q, want %q", tt.content, lines, tt.want)
		}
	}
}

func TestRenderDateSeparatorAndRoomHeader(t *testing.T) {
	r := testRenderer()
	sep := r.Render(models.Tile{Kind: models.TileDateSeparator, Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}, 40)
	if len(sep) != 1 || !strings.Contains(sep[0], "Fri, Mar 1 2024") {
		t.Errorf("separator = %q", sep)
	}
	header := r.Render(models.Tile{Kind: models.TileRoomHeader, RoomName: "General"}, 40)
	if len(header) != 1 || !strings.Contains(header[0], "General") {
		t.Errorf("room header = %q", header)
	}
}

func TestHighlightKeepsText(t *testing.T) {
	r := testRenderer()
	ev := textEvent("$1", "@alice:example.org", "Find the Needle here")

	lines := r.Render(models.Tile{Kind: models.TileMessage, Event: ev, Continuation: true, Highlights: []string{"needle"}}, 60)
	if len(lines) != 1 {
		t.Fatalf("unexpected lines %q", lines)
	}
	if !strings.Contains(stripANSI(lines[0]), "Find the Needle here") {
		t.Errorf("highlighted line %q lost text", lines[0])
	}
}

func TestSenderColorStable(t *testing.T) {
	s := NewStyles(ThemeHighContrast)
	first := s.SenderColor("@alice:example.org")
	if got := s.SenderColor(" @Alice:example.org "); got != first {
		t.Errorf("SenderColor not normalized: %s vs %s", got, first)
	}
	if s.Palette.Name != ThemeHighContrast {
		t.Errorf("palette = %s", s.Palette.Name)
	}
	if PaletteFor("unknown").Name != ThemeDefault {
		t.Errorf("unknown theme should fall back to default")
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("@alice:example.org"); got != "alice" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := DisplayName("@broken"); got != "broken" {
		t.Errorf("DisplayName = %q", got)
	}
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return b.String()
}
