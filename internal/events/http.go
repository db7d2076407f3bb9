package events

import "time"

// HTTPClientStart is emitted before an HTTP fetch is sent.
type HTTPClientStart struct {
	Method string
	URL    string
}

// HTTPClientFinish is emitted after an HTTP fetch completes.
type HTTPClientFinish struct {
	Method   string
	URL      string
	Status   int
	Err      error
	Duration time.Duration
}
