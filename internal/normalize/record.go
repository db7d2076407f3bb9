package normalize

import (
	"strconv"
	"strings"
)

const (
	// RootID is the record id of the operation root.
	RootID = "client:root"
	// RootTypename is the typename recorded on the root record.
	RootTypename = "__Root"

	IDKey       = "__id"
	TypenameKey = "__typename"
	RefKey      = "__ref"
	RefsKey     = "__refs"
)

// Record is one normalized object. Linked fields hold {"__ref": id} and
// plural linked fields {"__refs": [id, ...]}.
type Record map[string]any

// ID returns the record's id.
func (r Record) ID() string {
	id, _ := r[IDKey].(string)
	return id
}

// Typename returns the record's __typename, if known.
func (r Record) Typename() string {
	t, _ := r[TypenameKey].(string)
	return t
}

// RecordSource is a flat id-keyed set of records.
type RecordSource map[string]Record

// Linked follows the singular linked field storageKey of rec.
func (s RecordSource) Linked(rec Record, storageKey string) (Record, bool) {
	ref, ok := rec[storageKey].(map[string]any)
	if !ok {
		return nil, false
	}
	id, ok := ref[RefKey].(string)
	if !ok {
		return nil, false
	}
	out, ok := s[id]
	return out, ok
}

// PluralLinked follows the plural linked field storageKey of rec. Null list
// items yield nil records.
func (s RecordSource) PluralLinked(rec Record, storageKey string) ([]Record, bool) {
	ref, ok := rec[storageKey].(map[string]any)
	if !ok {
		return nil, false
	}
	ids, ok := ref[RefsKey].([]any)
	if !ok {
		return nil, false
	}
	out := make([]Record, len(ids))
	for i, v := range ids {
		if id, ok := v.(string); ok {
			out[i] = s[id]
		}
	}
	return out, true
}

// ClientID builds the id of an object that has no id of its own, derived
// from its parent record and the field that holds it. index is ignored when
// negative.
func ClientID(parentID, storageKey string, index int) string {
	key := parentID + ":" + storageKey
	if index >= 0 {
		key += ":" + strconv.Itoa(index)
	}
	if !strings.HasPrefix(key, "client:") {
		key = "client:" + key
	}
	return key
}

// Result is the normalized form of one payload.
type Result struct {
	RootID     string         `json:"rootId"`
	Source     RecordSource   `json:"records"`
	Errors     []PayloadError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Root returns the root record.
func (r *Result) Root() Record { return r.Source[r.RootID] }
