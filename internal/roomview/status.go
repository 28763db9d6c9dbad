package roomview

import (
	"fmt"
	"strings"

	"maunium.net/go/mautrix/id"
)

// StatusKind is the content of the single status-bar slot.
type StatusKind int

const (
	StatusNone StatusKind = iota
	StatusConnectionLost
	StatusUnsent
	StatusUnread
	StatusTyping
)

func (k StatusKind) String() string {
	switch k {
	case StatusConnectionLost:
		return "connection_lost"
	case StatusUnsent:
		return "unsent"
	case StatusUnread:
		return "unread"
	case StatusTyping:
		return "typing"
	default:
		return "none"
	}
}

// Status is the status-bar selection.
type Status struct {
	Kind   StatusKind
	Title  string
	Detail string
}

// StatusInputs are the signals competing for the status bar.
type StatusInputs struct {
	Searching      bool
	ConnectionLost bool
	HasUnsent      bool
	UnreadCount    int
	Typing         []id.UserID
}

type statusRule struct {
	kind    StatusKind
	matches func(StatusInputs) bool
	render  func(StatusInputs) Status
}

// Evaluated top to bottom; the first match wins.
var statusRules = []statusRule{
	{
		kind:    StatusNone,
		matches: func(in StatusInputs) bool { return in.Searching },
		render:  func(StatusInputs) Status { return Status{Kind: StatusNone} },
	},
	{
		kind:    StatusConnectionLost,
		matches: func(in StatusInputs) bool { return in.ConnectionLost },
		render: func(StatusInputs) Status {
			return Status{
				Kind:   StatusConnectionLost,
				Title:  "Connectivity to the server has been lost.",
				Detail: "Sent messages will be stored until your connection has returned.",
			}
		},
	},
	{
		kind:    StatusUnsent,
		matches: func(in StatusInputs) bool { return in.HasUnsent },
		render: func(StatusInputs) Status {
			return Status{
				Kind:   StatusUnsent,
				Title:  "Some of your messages have not been sent.",
				Detail: "Resend all now or select individual messages to re-send.",
			}
		},
	},
	{
		kind:    StatusUnread,
		matches: func(in StatusInputs) bool { return in.UnreadCount > 0 },
		render: func(in StatusInputs) Status {
			return Status{Kind: StatusUnread, Title: UnreadText(in.UnreadCount)}
		},
	},
	{
		kind:    StatusTyping,
		matches: func(in StatusInputs) bool { return len(in.Typing) > 0 },
		render: func(in StatusInputs) Status {
			return Status{Kind: StatusTyping, Title: TypingText(in.Typing)}
		},
	},
}

// SelectStatus picks exactly one status for the bar.
func SelectStatus(in StatusInputs) Status {
	for _, rule := range statusRules {
		if rule.matches(in) {
			return rule.render(in)
		}
	}
	return Status{Kind: StatusNone}
}

// UnreadText renders the unread badge, or "" for zero.
func UnreadText(n int) string {
	if n <= 0 {
		return ""
	}
	if n == 1 {
		return "1 new message"
	}
	return fmt.Sprintf("%d new messages", n)
}

// TypingText names who is typing.
func TypingText(users []id.UserID) string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, displayName(user))
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing"
	case 2:
		return names[0] + " and " + names[1] + " are typing"
	default:
		others := len(names) - 2
		suffix := "others"
		if others == 1 {
			suffix = "other"
		}
		return fmt.Sprintf("%s, %s and %d %s are typing", names[0], names[1], others, suffix)
	}
}

func displayName(user id.UserID) string {
	local, _, err := user.Parse()
	if err != nil || local == "" {
		return strings.TrimPrefix(user.String(), "@")
	}
	return local
}
