package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andreassavva/relay/internal/operation"
)

var (
	// ErrMissingDefinition is returned for an operation that was not parsed.
	ErrMissingDefinition = errors.New("normalize: operation has no parsed definition")
)

// ShapeError reports a payload that does not match the operation's
// selections.
type ShapeError struct {
	Path    []any
	Message string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("normalize: %s at %s", e.Message, formatPath(e.Path))
}

func formatPath(path []any) string {
	if len(path) == 0 {
		return "<root>"
	}
	var b strings.Builder
	for i, p := range path {
		switch v := p.(type) {
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// MissingDataError is synthesized when a payload carries no data. It keeps
// the server errors and the operation for diagnostics.
type MissingDataError struct {
	Operation operation.Operation
	Variables map[string]any
	Errors    []PayloadError
}

func (e *MissingDataError) Error() string {
	name := e.Operation.Name
	if name == "" {
		name = e.Operation.ID
	}
	msgs := "(no errors)"
	if len(e.Errors) > 0 {
		lines := make([]string, len(e.Errors))
		for i, pe := range e.Errors {
			lines[i] = pe.Message
		}
		msgs = strings.Join(lines, "\n")
	}
	return fmt.Sprintf("normalize: no data returned for operation %q, got error(s):\n%s\n\nsee MissingDataError.Errors for more information", name, msgs)
}
