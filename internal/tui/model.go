// Package tui is the terminal surface for a room view: it lays tiles out
// into lines, reports geometry back to the view and maps keys to view
// messages.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/roomview"
)

// chromeHeight is the header, the two status lines, the notice line and
// the prompt line.
const chromeHeight = 5

type inputMode int

const (
	modeNormal inputMode = iota
	modeSearch
	modeCompose
)

// Config configures the surface.
type Config struct {
	Theme          string
	ShowTimestamps bool
	RoomID         id.RoomID
	// Rooms is the switch order used after an invite is rejected.
	Rooms []id.RoomID
	// RoomName resolves display names; the room id is shown when nil.
	RoomName func(id.RoomID) string
	// OnRoomChange is called whenever another room is mounted.
	OnRoomChange func(id.RoomID)
}

// Model is the bubbletea model hosting a roomview.View.
type Model struct {
	view     *roomview.View
	renderer Renderer
	cfg      Config

	width  int
	height int

	lines     []string
	extents   map[id.EventID]models.Extent
	scrollTop int
	rendered  uint64
	laidOut   bool

	mode  inputMode
	input string
	scope models.SearchScope
}

// NewModel wraps a view; the room in cfg is mounted by Init.
func NewModel(view *roomview.View, cfg Config) *Model {
	return &Model{
		view:     view,
		renderer: Renderer{Styles: NewStyles(cfg.Theme), ShowTimestamps: cfg.ShowTimestamps},
		cfg:      cfg,
		scope:    models.SearchScopeRoom,
	}
}

// Run starts the program on the alternate screen.
func Run(view *roomview.View, cfg Config) error {
	model := NewModel(view, cfg)
	defer view.Unmount()
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	if m.cfg.RoomID == "" {
		return nil
	}
	return m.view.Mount(m.cfg.RoomID)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.laidOut = false
		return m, m.settle()
	case tea.KeyMsg:
		return m, tea.Batch(m.handleKey(typed), m.settle())
	case roomview.ViewNextRoomMsg:
		return m, tea.Batch(m.switchRoom(m.nextRoom(typed.Left)), m.settle())
	}
	return m, tea.Batch(m.view.Update(msg), m.settle())
}

// settle applies pending scroll requests and relayouts after the view
// changed. A RenderedMsg is emitted for every new layout so the view can
// anchor and continue paginating.
func (m *Model) settle() tea.Cmd {
	if m.width <= 0 || m.height <= 0 {
		return nil
	}
	changed := !m.laidOut || m.view.Revision() != m.rendered
	if changed {
		m.layout()
	}
	if scroll, ok := m.view.TakeScroll(); ok {
		if scroll.Bottom {
			m.scrollTop = m.maxScroll()
		} else {
			m.scrollTop = scroll.Offset
		}
		m.clampScroll()
	}
	if !changed {
		return nil
	}
	g := m.Geometry()
	return func() tea.Msg { return roomview.RenderedMsg{Geometry: g} }
}

func (m *Model) layout() {
	tiles := m.view.Tiles()
	m.lines = m.lines[:0]
	m.extents = make(map[id.EventID]models.Extent, len(tiles))
	for _, tile := range tiles {
		top := len(m.lines)
		m.lines = append(m.lines, m.renderer.Render(tile, m.width)...)
		if eventID := tile.EventID(); eventID != "" {
			if _, seen := m.extents[eventID]; !seen {
				m.extents[eventID] = models.Extent{Top: top, Bottom: len(m.lines) - 1}
			}
		}
	}
	m.rendered = m.view.Revision()
	m.laidOut = true
	m.clampScroll()
}

// Geometry reports the current layout in line units.
func (m *Model) Geometry() models.Geometry {
	extents := make(map[id.EventID]models.Extent, len(m.extents))
	for k, v := range m.extents {
		extents[k] = v
	}
	return models.Geometry{
		ScrollTop:      m.scrollTop,
		ViewportHeight: m.viewportHeight(),
		ContentHeight:  len(m.lines),
		Extents:        extents,
	}
}

func (m *Model) viewportHeight() int {
	h := m.height - chromeHeight
	if h < 1 {
		return 1
	}
	return h
}

func (m *Model) maxScroll() int {
	limit := len(m.lines) - m.viewportHeight()
	if limit < 0 {
		return 0
	}
	return limit
}

func (m *Model) clampScroll() {
	if m.scrollTop > m.maxScroll() {
		m.scrollTop = m.maxScroll()
	}
	if m.scrollTop < 0 {
		m.scrollTop = 0
	}
}

func (m *Model) scrollBy(delta int) tea.Cmd {
	m.scrollTop += delta
	m.clampScroll()
	return tea.Batch(
		m.view.Update(roomview.ScrollMsg{Geometry: m.Geometry()}),
		m.view.Update(roomview.UserActivityMsg{}),
	)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	if m.mode != modeNormal {
		return m.handleInputKey(msg)
	}

	switch msg.String() {
	case "q":
		return tea.Quit
	case "k", "up":
		return m.scrollBy(-1)
	case "j", "down":
		return m.scrollBy(1)
	case "pgup", "ctrl+u":
		return m.scrollBy(-m.viewportHeight())
	case "pgdown", "ctrl+d":
		return m.scrollBy(m.viewportHeight())
	case "g", "home":
		return m.scrollBy(-len(m.lines))
	case "G", "end":
		return tea.Batch(m.view.Update(roomview.ScrollToBottomMsg{}), m.view.Update(roomview.UserActivityMsg{}))
	case "/":
		m.mode = modeSearch
		m.input = m.view.SearchTerm()
		return nil
	case "i":
		if m.view.State() == roomview.StateJoined {
			m.mode = modeCompose
			m.input = ""
		}
		return nil
	case "esc":
		return m.view.Update(roomview.CancelSearchMsg{})
	case "J":
		return m.view.Update(roomview.JoinMsg{})
	case "r":
		return m.view.Update(roomview.RejectMsg{})
	case "R":
		return m.view.Update(roomview.ResendAllMsg{})
	case "x":
		return m.view.Update(roomview.DismissNoticeMsg{})
	case "n":
		return m.switchRoom(m.nextRoom(m.view.RoomID()))
	}
	return nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
		m.input = ""
		return nil
	case tea.KeyEnter:
		text := m.input
		mode := m.mode
		m.mode = modeNormal
		m.input = ""
		if mode == modeSearch {
			return m.view.Update(roomview.SearchMsg{Term: text, Scope: m.scope})
		}
		return m.view.Update(roomview.SendMsg{Body: text})
	case tea.KeyTab:
		if m.mode == modeSearch {
			if m.scope == models.SearchScopeRoom {
				m.scope = models.SearchScopeAll
			} else {
				m.scope = models.SearchScopeRoom
			}
		}
		return nil
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return nil
	case tea.KeySpace:
		m.input += " "
		return nil
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return nil
	}
	return nil
}

func (m *Model) nextRoom(left id.RoomID) id.RoomID {
	if len(m.cfg.Rooms) == 0 {
		return ""
	}
	for i, room := range m.cfg.Rooms {
		if room == left {
			for j := 1; j < len(m.cfg.Rooms); j++ {
				if next := m.cfg.Rooms[(i+j)%len(m.cfg.Rooms)]; next != left {
					return next
				}
			}
			return ""
		}
	}
	if m.cfg.Rooms[0] != left {
		return m.cfg.Rooms[0]
	}
	return ""
}

func (m *Model) switchRoom(roomID id.RoomID) tea.Cmd {
	if roomID == "" {
		return nil
	}
	m.mode = modeNormal
	m.input = ""
	m.scrollTop = 0
	m.laidOut = false
	cmd := m.view.SetRoom(roomID)
	if m.cfg.OnRoomChange != nil {
		m.cfg.OnRoomChange(roomID)
	}
	return cmd
}

func (m *Model) roomName(roomID id.RoomID) string {
	if m.cfg.RoomName != nil {
		if name := m.cfg.RoomName(roomID); name != "" {
			return name
		}
	}
	return roomID.String()
}

func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	styles := m.renderer.Styles

	header := styles.Header.Render(truncate(m.headerText(), m.width))

	vh := m.viewportHeight()
	body := make([]string, 0, vh)
	for i := m.scrollTop; i < len(m.lines) && len(body) < vh; i++ {
		body = append(body, m.lines[i])
	}
	for len(body) < vh {
		body = append(body, "")
	}

	status := m.view.Status()
	statusLine := styles.Status.Render(truncate(status.Title, m.width))
	detailLine := styles.Detail.Render(truncate(status.Detail, m.width))

	noticeLine := ""
	if notice, ok := m.view.Notice(); ok {
		noticeLine = styles.Notice.Render(truncate(notice.Text()+"  (x to dismiss)", m.width))
	}

	parts := []string{header}
	parts = append(parts, body...)
	parts = append(parts, statusLine, detailLine, noticeLine, styles.Prompt.Render(truncate(m.promptText(), m.width)))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) headerText() string {
	if !m.view.Mounted() {
		return "roomview"
	}
	text := m.roomName(m.view.RoomID())
	if m.view.Searching() {
		text += fmt.Sprintf("  search: %q", m.view.SearchTerm())
		if res, ok := m.view.SearchResults(); ok {
			text += fmt.Sprintf(" (%d results)", res.Count)
		}
	}
	return text
}

func (m *Model) promptText() string {
	switch m.mode {
	case modeSearch:
		return fmt.Sprintf("search [%s]> %s", strings.ToLower(string(m.scope)), m.input)
	case modeCompose:
		return "> " + m.input
	}
	switch m.view.State() {
	case roomview.StateInvited, roomview.StateRejectFailed:
		return m.invitePrompt()
	case roomview.StateJoinFailed:
		if m.view.Inviter() != "" {
			return m.invitePrompt()
		}
		return "J to retry joining"
	case roomview.StateJoining:
		return "Joining..."
	case roomview.StateRejecting:
		return "Rejecting invite..."
	case roomview.StateNoRoom:
		if m.view.Mounted() {
			return "You are not a member of this room. J to join, n for the next room"
		}
		return "No room selected"
	}
	return "i compose  / search  R resend  G bottom  n next room  q quit"
}

func (m *Model) invitePrompt() string {
	return fmt.Sprintf("%s invited you to %s. J to join, r to reject",
		DisplayName(m.view.Inviter()), m.roomName(m.view.RoomID()))
}

// truncate clips unstyled text to width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
