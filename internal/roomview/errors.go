package roomview

import (
	"fmt"

	"github.com/tOgg1/roomview/internal/logging"
)

// ErrorKind classifies an RPC failure caught by the view.
type ErrorKind int

const (
	FetchFailed ErrorKind = iota + 1
	SendFailed
	JoinFailed
	RejectFailed
	SearchFailed
)

func (k ErrorKind) String() string {
	switch k {
	case FetchFailed:
		return "fetch_failed"
	case SendFailed:
		return "send_failed"
	case JoinFailed:
		return "join_failed"
	case RejectFailed:
		return "reject_failed"
	case SearchFailed:
		return "search_failed"
	default:
		return "unknown"
	}
}

// Notice is the latest failure shown to the user until dismissed.
type Notice struct {
	Kind ErrorKind
	Err  error
}

// Text is the user-facing message.
func (n Notice) Text() string {
	switch n.Kind {
	case JoinFailed:
		return "Failed to join room!"
	case RejectFailed:
		return "Failed to reject invite!"
	case SearchFailed:
		return fmt.Sprintf("Search failed: %s", n.detail())
	case SendFailed:
		return fmt.Sprintf("Failed to resend: %s", n.detail())
	case FetchFailed:
		return fmt.Sprintf("Failed to load history: %s", n.detail())
	default:
		return n.detail()
	}
}

func (n Notice) detail() string {
	if n.Err == nil {
		return "unknown error"
	}
	return logging.Redact(n.Err.Error())
}
