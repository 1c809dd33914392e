package kernel

// EventType tags one backend event.
type EventType string

const (
	// EventStream carries a chunk of stdout/stderr text.
	EventStream EventType = "stream"
	// EventDisplay carries rich display data keyed by mime type.
	EventDisplay EventType = "display_data"
	// EventError reports an execution error (exception name/value/traceback).
	EventError EventType = "error"
	// EventClearOutput asks the consumer to discard output collected so far.
	EventClearOutput EventType = "clear_output"
	// EventInputRequest signals the backend asked for interactive input,
	// which the engine does not support.
	EventInputRequest EventType = "input_request"
	// EventComplete is the terminal marker for one execute call.
	EventComplete EventType = "complete"
)

// Stream names for EventStream.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Event is one tagged message streamed from a kernel backend during an
// execute call. Exactly the fields for the tagged Type are populated.
type Event struct {
	Type EventType

	// EventStream
	Stream string
	Text   string

	// EventDisplay: mime type -> payload (text, data URI, or reference)
	Data map[string]string

	// EventError
	Ename     string
	Evalue    string
	Traceback []string
}

// StreamEvent builds a stream event.
func StreamEvent(stream, text string) Event {
	return Event{Type: EventStream, Stream: stream, Text: text}
}

// DisplayEvent builds a display-data event.
func DisplayEvent(data map[string]string) Event {
	return Event{Type: EventDisplay, Data: data}
}

// ErrorEvent builds an execution-error event.
func ErrorEvent(ename, evalue string, traceback []string) Event {
	return Event{Type: EventError, Ename: ename, Evalue: evalue, Traceback: traceback}
}

// CompleteEvent builds the terminal marker event.
func CompleteEvent() Event {
	return Event{Type: EventComplete}
}
