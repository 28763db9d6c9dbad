package tui

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme names accepted by the tui.theme setting.
const (
	ThemeDefault      = "default"
	ThemeHighContrast = "high-contrast"
)

// Palette holds the ANSI-256 color codes of a theme.
type Palette struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Own        string
	System     string
	Highlight  string
	Warning    string
	Error      string
	// Senders are the stable identity colors for message authors.
	Senders []string
}

var defaultPalette = Palette{
	Name:       ThemeDefault,
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Own:        "81",
	System:     "214",
	Highlight:  "220",
	Warning:    "214",
	Error:      "203",
	Senders: []string{
		"33", "39", "45", "69", "75", "81", "87", "99",
		"111", "117", "123", "147", "153", "159", "183", "189",
	},
}

var highContrastPalette = Palette{
	Name:       ThemeHighContrast,
	Foreground: "231",
	Muted:      "250",
	Accent:     "51",
	Own:        "87",
	System:     "229",
	Highlight:  "226",
	Warning:    "226",
	Error:      "196",
	Senders:    []string{"51", "87", "123", "159", "195", "225", "229"},
}

// PaletteFor resolves a theme name; unknown names fall back to the default.
func PaletteFor(name string) Palette {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ThemeHighContrast:
		return highContrastPalette
	default:
		return defaultPalette
	}
}

// Styles are the pre-built styles for one palette.
type Styles struct {
	Palette Palette

	Header    lipgloss.Style
	Timestamp lipgloss.Style
	Body      lipgloss.Style
	Own       lipgloss.Style
	System    lipgloss.Style
	Separator lipgloss.Style
	RoomTitle lipgloss.Style
	Context   lipgloss.Style
	Highlight lipgloss.Style
	Unsent    lipgloss.Style
	Status    lipgloss.Style
	Detail    lipgloss.Style
	Notice    lipgloss.Style
	Prompt    lipgloss.Style

	mu      sync.RWMutex
	senders map[string]lipgloss.Style
}

// NewStyles builds the style set for a theme name.
func NewStyles(theme string) *Styles {
	p := PaletteFor(theme)
	color := func(code string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(code))
	}
	return &Styles{
		Palette:   p,
		Header:    color(p.Accent).Bold(true),
		Timestamp: color(p.Muted),
		Body:      color(p.Foreground),
		Own:       color(p.Own).Bold(true),
		System:    color(p.System).Italic(true),
		Separator: color(p.Muted),
		RoomTitle: color(p.Accent).Bold(true).Underline(true),
		Context:   color(p.Muted).Faint(true),
		Highlight: color(p.Highlight).Bold(true),
		Unsent:    color(p.Error),
		Status:    color(p.Warning).Bold(true),
		Detail:    color(p.Muted),
		Notice:    color(p.Error).Bold(true),
		Prompt:    color(p.Accent),
		senders:   make(map[string]lipgloss.Style, 32),
	}
}

// Sender returns the cached identity style for a user.
func (s *Styles) Sender(user string) lipgloss.Style {
	key := strings.ToLower(strings.TrimSpace(user))

	s.mu.RLock()
	style, ok := s.senders[key]
	s.mu.RUnlock()
	if ok {
		return style
	}

	style = lipgloss.NewStyle().Foreground(lipgloss.Color(s.SenderColor(key))).Bold(true)
	s.mu.Lock()
	s.senders[key] = style
	s.mu.Unlock()
	return style
}

// SenderColor hashes a user onto the palette so colors stay stable across runs.
func (s *Styles) SenderColor(user string) string {
	if len(s.Palette.Senders) == 0 {
		return s.Palette.Foreground
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(user))))
	return s.Palette.Senders[h.Sum32()%uint32(len(s.Palette.Senders))]
}
