package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

const bodyIndent = "  "

// Renderer turns tiles into terminal lines.
type Renderer struct {
	Styles         *Styles
	ShowTimestamps bool
}

// Render returns the lines of one tile at the given width. Every tile
// renders to at least one line.
func (r Renderer) Render(tile models.Tile, width int) []string {
	if width < 8 {
		width = 8
	}
	var lines []string
	switch tile.Kind {
	case models.TileDateSeparator:
		lines = []string{r.separator(tile, width)}
	case models.TileRoomHeader:
		lines = []string{r.Styles.RoomTitle.Render(tile.RoomName)}
	case models.TileMessage, models.TileContextual:
		lines = r.event(tile, width)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func (r Renderer) separator(tile models.Tile, width int) string {
	label := " " + tile.Timestamp.Format("Mon, Jan 2 2006") + " "
	pad := width - len(label)
	if pad < 2 {
		return r.Styles.Separator.Render(strings.TrimSpace(label))
	}
	left := pad / 2
	return r.Styles.Separator.Render(strings.Repeat("─", left) + label + strings.Repeat("─", pad-left))
}

func (r Renderer) event(tile models.Tile, width int) []string {
	ev := tile.Event
	if ev == nil {
		return nil
	}
	if text, ok := systemText(ev); ok {
		return []string{r.Styles.System.Render("* " + text)}
	}

	bodyStyle := r.Styles.Body
	if tile.Kind == models.TileContextual {
		bodyStyle = r.Styles.Context
	}

	var lines []string
	if !tile.Continuation || tile.Kind == models.TileContextual {
		lines = append(lines, r.header(tile))
	}

	body := ev.Body()
	if ev.Is(event.EventEncrypted) {
		body = "(encrypted)"
	}
	wrapped := wordwrap.String(body, width-len(bodyIndent))
	for _, line := range strings.Split(wrapped, "\n") {
		lines = append(lines, bodyIndent+r.highlight(line, tile.Highlights, bodyStyle))
	}

	switch ev.SendStatus {
	case models.SendStatusNotSent:
		lines = append(lines, bodyIndent+r.Styles.Unsent.Render("! not sent"))
	case models.SendStatusSending:
		lines[len(lines)-1] += " " + r.Styles.Timestamp.Render("(sending)")
	}
	return lines
}

func (r Renderer) header(tile models.Tile) string {
	ev := tile.Event
	name := DisplayName(ev.Sender)
	style := r.Styles.Sender(ev.Sender.String())
	if tile.Own {
		style = r.Styles.Own
	}
	out := style.Render(name)
	if r.ShowTimestamps && ev.TimestampMs > 0 {
		out += " " + r.Styles.Timestamp.Render(ev.Time().Format("15:04"))
	}
	return out
}

// highlight styles case-insensitive occurrences of terms. Terms are tried in
// order at each position, so callers pass the longest first.
func (r Renderer) highlight(line string, terms []string, base lipgloss.Style) string {
	if len(terms) == 0 || line == "" {
		return base.Render(line)
	}
	var b strings.Builder
	plain := 0
	for i := 0; i < len(line); {
		matched := ""
		for _, term := range terms {
			if term != "" && i+len(term) <= len(line) && strings.EqualFold(line[i:i+len(term)], term) {
				matched = line[i : i+len(term)]
				break
			}
		}
		if matched == "" {
			i++
			continue
		}
		if plain < i {
			b.WriteString(base.Render(line[plain:i]))
		}
		b.WriteString(r.Styles.Highlight.Render(matched))
		i += len(matched)
		plain = i
	}
	if plain < len(line) {
		b.WriteString(base.Render(line[plain:]))
	}
	return b.String()
}

// systemText describes state events drawn as single system lines.
func systemText(ev *models.Event) (string, bool) {
	sender := DisplayName(ev.Sender)
	switch {
	case ev.IsMembership():
		target := ""
		if ev.StateKey != nil {
			target = DisplayName(id.UserID(*ev.StateKey))
		}
		return membershipText(sender, target, ev.Membership()), true
	case ev.Is(event.StateRoomName):
		return fmt.Sprintf("%s changed the room name to %s", sender, ev.ContentString("name")), true
	case ev.Is(event.StateTopic):
		return fmt.Sprintf("%s changed the topic to %s", sender, ev.ContentString("topic")), true
	case ev.Is(event.CallInvite):
		return sender + " started a call", true
	case ev.Is(event.CallAnswer):
		return sender + " answered the call", true
	case ev.Is(event.CallHangup):
		return sender + " ended the call", true
	}
	return "", false
}

func membershipText(sender, target string, membership event.Membership) string {
	switch membership {
	case event.MembershipJoin:
		return target + " joined the room"
	case event.MembershipInvite:
		return sender + " invited " + target
	case event.MembershipBan:
		return sender + " banned " + target
	case event.MembershipLeave:
		if sender != target {
			return sender + " removed " + target
		}
		return target + " left the room"
	default:
		return target + " changed membership"
	}
}

// DisplayName is the localpart of a user id.
func DisplayName(user id.UserID) string {
	local, _, err := user.Parse()
	if err != nil || local == "" {
		return strings.TrimPrefix(user.String(), "@")
	}
	return local
}
