// Package tool defines the callable-tool abstraction the session core
// dispatches against: a registry of named tools, each carrying a JSON schema
// for its arguments derived from a Go type.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrInvalidArgs marks an argument payload the tool could not decode.
// Dispatchers convert it into an "invalid arguments" result instead of a
// generic failure.
var ErrInvalidArgs = errors.New("tool: invalid arguments")

// Tool is one callable capability.
//
// Invoke receives the raw argument payload and returns a result value that
// the dispatcher serializes. Implementations should honor context
// cancellation for long-running work.
type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Declaration is the wire-facing description of a tool, advertised to the
// model in the session-start sequence.
type Declaration struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Func is a Tool backed by a Go function with typed arguments. The argument
// schema is derived from A.
type Func[A any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args A) (any, error)
}

// NewFunc builds a Func tool. The JSON schema for A is derived by
// reflection; struct tags on A control property names and the schema fails
// to derive for types without a JSON mapping.
func NewFunc[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) (*Func[A], error) {
	schema, err := jsonschema.For[A](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("tool: schema for %q: %w", name, err)
	}
	return &Func[A]{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}, nil
}

// MustNewFunc is NewFunc, panicking on schema derivation failure. Intended
// for package-level tool construction with known-good argument types.
func MustNewFunc[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) *Func[A] {
	t, err := NewFunc(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Func[A]) Name() string               { return t.name }
func (t *Func[A]) Description() string        { return t.description }
func (t *Func[A]) Schema() *jsonschema.Schema { return t.schema }

// Invoke decodes args into A and calls the wrapped function. Malformed JSON
// gets one repair pass before the decode is rejected with ErrInvalidArgs.
func (t *Func[A]) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var v A
	if err := unmarshalArgs(args, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return t.fn(ctx, v)
}

// unmarshalArgs unmarshals an argument payload, attempting to repair
// malformed JSON before giving up. Empty payloads decode as an empty object.
func unmarshalArgs(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
