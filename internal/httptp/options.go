package httptp

import (
	"net/http"
	"time"
)

// Options configures the HTTP transport.
//
// Defaults:
// - Timeout: 30s (used only if the fetch context has no deadline)
// - Client:  a clone of http.DefaultTransport without a client-level timeout
type Options struct {
	Endpoint string
	Headers  http.Header
	Timeout  time.Duration
	Client   *http.Client
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Headers: http.Header{},
		Timeout: 30 * time.Second,
	}
}

func WithEndpoint(url string) Option       { return func(o *Options) { o.Endpoint = url } }
func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }
func WithHeader(key, value string) Option  { return func(o *Options) { o.Headers.Add(key, value) } }
