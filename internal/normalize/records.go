package normalize

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	language "github.com/andreassavva/relay/internal/language"
	"github.com/andreassavva/relay/internal/operation"
)

// RecordNormalizer flattens a payload into id-keyed records by walking the
// operation's selections. Objects with an "id" field are stored under that
// id; other objects get a ClientID derived from their parent.
//
// Without a schema, type conditions are checked against __typename when the
// payload provides it. A fragment whose condition does not match (it may name
// an interface) is still walked, but only fields present in the payload are
// written.
type RecordNormalizer struct{}

func NewRecordNormalizer() *RecordNormalizer { return &RecordNormalizer{} }

var _ Normalizer = (*RecordNormalizer)(nil)

func (*RecordNormalizer) Normalize(op operation.Context, data map[string]any, errs []PayloadError, opts Options) (*Result, error) {
	def := op.Operation.Definition
	if def == nil {
		return nil, ErrMissingDefinition
	}
	w := &walker{
		doc:    op.Operation.Document,
		vars:   op.Variables,
		opts:   opts,
		source: RecordSource{},
	}
	root := w.record(RootID, nil)
	root[TypenameKey] = RootTypename
	if err := w.walkObject(RootID, root, def.SelectionSet, data, nil); err != nil {
		return nil, err
	}
	return &Result{RootID: RootID, Source: w.source, Errors: errs}, nil
}

type walker struct {
	doc    *language.QueryDocument
	vars   map[string]any
	opts   Options
	source RecordSource
}

func (w *walker) record(id string, data map[string]any) Record {
	rec, ok := w.source[id]
	if !ok {
		rec = Record{IDKey: id}
		w.source[id] = rec
	}
	if t, ok := data[TypenameKey].(string); ok {
		rec[TypenameKey] = t
	}
	return rec
}

func (w *walker) walkObject(id string, rec Record, sels language.SelectionSet, data map[string]any, path []any) error {
	typename, _ := data[TypenameKey].(string)
	return w.walkSelections(id, rec, sels, data, typename, false, map[string]bool{}, path)
}

func (w *walker) walkSelections(id string, rec Record, sels language.SelectionSet, data map[string]any, typename string, partial bool, visited map[string]bool, path []any) error {
	for _, selection := range sels {
		switch sel := selection.(type) {
		case *language.Field:
			if !w.shouldInclude(sel.Directives) {
				continue
			}
			if err := w.walkField(id, rec, sel, data, partial, path); err != nil {
				return err
			}

		case *language.InlineFragment:
			if !w.shouldInclude(sel.Directives) {
				continue
			}
			refined := partial || !typeMatches(sel.TypeCondition, typename)
			if err := w.walkSelections(id, rec, sel.SelectionSet, data, typename, refined, visited, path); err != nil {
				return err
			}

		case *language.FragmentSpread:
			if !w.shouldInclude(sel.Directives) || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			frag := language.FindFragment(w.doc, sel.Name)
			if frag == nil {
				return &ShapeError{Path: path, Message: fmt.Sprintf("unknown fragment %q", sel.Name)}
			}
			if !w.shouldInclude(frag.Directives) {
				continue
			}
			refined := partial || !typeMatches(frag.TypeCondition, typename)
			if err := w.walkSelections(id, rec, frag.SelectionSet, data, typename, refined, visited, path); err != nil {
				return err
			}

		default:
			panic(fmt.Sprintf("normalize: unexpected selection %T", selection))
		}
	}
	return nil
}

func typeMatches(condition, typename string) bool {
	return condition == "" || typename == "" || condition == typename
}

func (w *walker) walkField(id string, rec Record, field *language.Field, data map[string]any, partial bool, path []any) error {
	responseKey := field.Alias
	if responseKey == "" {
		responseKey = field.Name
	}
	fieldPath := append(slices.Clip(path), responseKey)

	storageKey, err := w.storageKey(field)
	if err != nil {
		return &ShapeError{Path: fieldPath, Message: err.Error()}
	}

	value, present := data[responseKey]
	if !present {
		if w.opts.TreatMissingFieldsAsNull && !partial {
			rec[storageKey] = nil
		}
		return nil
	}

	if len(field.SelectionSet) == 0 {
		rec[storageKey] = value
		return nil
	}

	switch v := value.(type) {
	case nil:
		rec[storageKey] = nil
	case map[string]any:
		childID := childRecordID(id, storageKey, v, -1)
		child := w.record(childID, v)
		rec[storageKey] = map[string]any{RefKey: childID}
		return w.walkObject(childID, child, field.SelectionSet, v, fieldPath)
	case []any:
		refs := make([]any, len(v))
		for i, item := range v {
			switch obj := item.(type) {
			case nil:
			case map[string]any:
				childID := childRecordID(id, storageKey, obj, i)
				child := w.record(childID, obj)
				refs[i] = childID
				if err := w.walkObject(childID, child, field.SelectionSet, obj, append(slices.Clip(fieldPath), i)); err != nil {
					return err
				}
			default:
				return &ShapeError{Path: append(slices.Clip(fieldPath), i), Message: fmt.Sprintf("expected object, got %T", item)}
			}
		}
		rec[storageKey] = map[string]any{RefsKey: refs}
	default:
		return &ShapeError{Path: fieldPath, Message: fmt.Sprintf("expected object or list, got %T", value)}
	}
	return nil
}

func childRecordID(parentID, storageKey string, data map[string]any, index int) string {
	switch id := data["id"].(type) {
	case string:
		if id != "" {
			return id
		}
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	}
	return ClientID(parentID, storageKey, index)
}

// storageKey returns name, or name(arg:value,...) with arguments sorted by
// name, values JSON-encoded and null arguments omitted.
func (w *walker) storageKey(field *language.Field) (string, error) {
	if len(field.Arguments) == 0 {
		return field.Name, nil
	}
	type pair struct{ name, value string }
	args := make([]pair, 0, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(w.vars)
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		if v == nil {
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		args = append(args, pair{name: arg.Name, value: string(enc)})
	}
	if len(args) == 0 {
		return field.Name, nil
	}
	slices.SortFunc(args, func(a, b pair) int { return strings.Compare(a.name, b.name) })
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.name + ":" + a.value
	}
	return field.Name + "(" + strings.Join(parts, ",") + ")", nil
}

func (w *walker) shouldInclude(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if b, ok := w.directiveArg(skip, "if").(bool); ok && b {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if b, ok := w.directiveArg(include, "if").(bool); ok && !b {
			return false
		}
	}
	return true
}

func (w *walker) directiveArg(d *language.Directive, name string) any {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return nil
	}
	v, err := arg.Value.Value(w.vars)
	if err != nil {
		return nil
	}
	return v
}
