package tabs

// EventKind tags an engine callback.
type EventKind int

const (
	EventPageStarted EventKind = iota + 1
	EventPageFinished
	EventProgressChanged
	EventReceivedTitle
	EventReceivedIcon
	EventLoadResource
	EventReceivedError
	EventProceededAfterSSLError
	EventRequestFocus
	EventCloseWindow
)

func (k EventKind) String() string {
	switch k {
	case EventPageStarted:
		return "page_started"
	case EventPageFinished:
		return "page_finished"
	case EventProgressChanged:
		return "progress_changed"
	case EventReceivedTitle:
		return "received_title"
	case EventReceivedIcon:
		return "received_icon"
	case EventLoadResource:
		return "load_resource"
	case EventReceivedError:
		return "received_error"
	case EventProceededAfterSSLError:
		return "proceeded_after_ssl_error"
	case EventRequestFocus:
		return "request_focus"
	case EventCloseWindow:
		return "close_window"
	default:
		return "unknown"
	}
}

// Event is one callback from a content view. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind
	View ContentView

	URL         string
	Title       string
	Progress    int
	Icon        []byte
	ErrorCode   ErrorCode
	Description string
}
