// Package operation describes the target of one fetch: the GraphQL operation,
// its variables, and the cache/poll configuration the execution layer reads.
//
// A Context is immutable for the lifetime of one execution. Derivations such
// as WithForce return copies.
package operation

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	language "github.com/andreassavva/relay/internal/language"
)

// Kind is the GraphQL operation type.
type Kind string

const (
	KindQuery        Kind = Kind(language.Query)
	KindMutation     Kind = Kind(language.Mutation)
	KindSubscription Kind = Kind(language.Subscription)
)

// Operation identifies a parsed GraphQL operation.
type Operation struct {
	// ID is a stable identifier. Persisted-query transports send it instead
	// of Text.
	ID   string
	Name string
	Kind Kind
	Text string

	Document   *language.QueryDocument
	Definition *language.OperationDefinition
}

// IsSubscription reports whether the operation is a live subscription.
func (o Operation) IsSubscription() bool { return o.Kind == KindSubscription }

// ParseError reports a document that cannot be used as an operation.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("operation %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("operation: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses text and selects the operation called name, or the only
// operation in the document when name is empty. Anonymous operations get a
// random ID.
func Parse(text, name string) (Operation, error) {
	doc, err := language.ParseQuery(text)
	if err != nil {
		return Operation{}, &ParseError{Name: name, Err: err}
	}
	def := language.FindOperation(doc, name)
	if def == nil {
		if name == "" && len(doc.Operations) > 1 {
			return Operation{}, &ParseError{Err: ErrAmbiguousOperation}
		}
		return Operation{}, &ParseError{Name: name, Err: ErrOperationNotFound}
	}
	id := def.Name
	if id == "" {
		id = uuid.NewString()
	}
	return Operation{
		ID:         id,
		Name:       def.Name,
		Kind:       Kind(def.Operation),
		Text:       text,
		Document:   doc,
		Definition: def,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for static documents.
func MustParse(text, name string) Operation {
	op, err := Parse(text, name)
	if err != nil {
		panic(err)
	}
	return op
}

// CacheConfig carries per-execution cache and poll settings. The execution
// layer reads these fields and never mutates them.
type CacheConfig struct {
	// Force bypasses any response cache held by the fetch primitive.
	Force bool
	// Poll enables interval polling when non-nil. A non-positive interval
	// is a configuration error.
	Poll *time.Duration
	// LiveConfigID identifies a live-query configuration, if any.
	LiveConfigID string
	// Metadata is opaque to the execution layer and handed to the fetch
	// primitive unchanged.
	Metadata map[string]any
}

// PollEvery returns a pointer suitable for CacheConfig.Poll.
func PollEvery(d time.Duration) *time.Duration { return &d }

// PollInterval returns the configured interval and whether polling is set.
func (c CacheConfig) PollInterval() (time.Duration, bool) {
	if c.Poll == nil {
		return 0, false
	}
	return *c.Poll, true
}

func (c CacheConfig) clone() CacheConfig {
	out := c
	if c.Poll != nil {
		p := *c.Poll
		out.Poll = &p
	}
	out.Metadata = maps.Clone(c.Metadata)
	return out
}

// Context is the full identity of one fetch.
type Context struct {
	Operation   Operation
	Variables   map[string]any
	CacheConfig CacheConfig
}

// New builds a Context. vars and cfg are copied.
func New(op Operation, vars map[string]any, cfg CacheConfig) Context {
	if vars == nil {
		vars = map[string]any{}
	} else {
		vars = maps.Clone(vars)
	}
	return Context{Operation: op, Variables: vars, CacheConfig: cfg.clone()}
}

// WithForce returns a copy of c whose cache configuration has Force set.
func (c Context) WithForce() Context {
	out := c
	out.CacheConfig = c.CacheConfig.clone()
	out.CacheConfig.Force = true
	return out
}
