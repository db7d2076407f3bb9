// Package normalize is the boundary between raw GraphQL payloads and the
// normalized records the execution layer delivers.
//
// Apply is the only entry point the execution layer uses: it synthesizes a
// MissingDataError for payloads without data and otherwise defers to a
// Normalizer. RecordNormalizer is the default Normalizer.
package normalize

import "github.com/andreassavva/relay/internal/operation"

// Options tune normalization.
type Options struct {
	// TreatMissingFieldsAsNull stores null for selected fields absent from
	// the payload instead of leaving them unset.
	TreatMissingFieldsAsNull bool
}

// Normalizer converts the data of one payload into a Result. It must not
// retain or mutate data.
type Normalizer interface {
	Normalize(op operation.Context, data map[string]any, errs []PayloadError, opts Options) (*Result, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(op operation.Context, data map[string]any, errs []PayloadError, opts Options) (*Result, error)

func (f NormalizerFunc) Normalize(op operation.Context, data map[string]any, errs []PayloadError, opts Options) (*Result, error) {
	return f(op, data, errs, opts)
}

// Apply normalizes p for op. A payload with no data fails with a
// *MissingDataError without consulting n.
func Apply(n Normalizer, op operation.Context, p Payload, opts Options) (*Result, error) {
	if p.Data == nil {
		return nil, &MissingDataError{
			Operation: op.Operation,
			Variables: op.Variables,
			Errors:    p.Errors,
		}
	}
	res, err := n.Normalize(op, p.Data, p.Errors, opts)
	if err != nil {
		return nil, err
	}
	if res.Errors == nil {
		res.Errors = p.Errors
	}
	if res.Extensions == nil {
		res.Extensions = p.Extensions
	}
	return res, nil
}
