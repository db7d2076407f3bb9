package events

// Stream modes reported in StreamStart.
const (
	StreamModeRequest      = "request"
	StreamModePoll         = "poll"
	StreamModeSubscription = "subscription"
)

// StreamStart is emitted when a stream execution has been classified.
type StreamStart struct {
	OperationID   string
	OperationName string
	Mode          string
}

// StreamFinish is emitted when a stream terminates, errs, or is disposed.
type StreamFinish struct {
	OperationID   string
	OperationName string
	Mode          string
	Disposed      bool
	Err           error
}

// PollTick is emitted at the start of every poll tick.
type PollTick struct {
	OperationID   string
	OperationName string
	Tick          int
}

// UnhandledError carries an error that could not be delivered to an
// observer, such as one that arrived after disposal.
type UnhandledError struct {
	Err error
}
