package bridge

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind is the expected type of an argument.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBlob // serialized JSON, passed to the engine as a string
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in catalogue listings.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Shape describes how an operation's payload is laid out.
type Shape int

const (
	ShapeNone Shape = iota // no arguments; any payload is ignored
	ShapeArgs              // a map of named arguments
	ShapeBlob              // one blob argument, either bare or under its name in a map
)

func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeArgs:
		return "args"
	case ShapeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ArgSpec declares one argument. Arguments with a Default are optional.
type ArgSpec struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Default any    `json:"default,omitempty"`
}

// Required reports whether the argument must be present.
func (a ArgSpec) Required() bool { return a.Default == nil }

// Args holds decoded arguments. Accessors return zero values for names that were not declared.
type Args struct {
	values map[string]any
}

func (a Args) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

func (a Args) Int(name string) int {
	n, _ := a.values[name].(int)
	return n
}

// Len is the number of decoded arguments.
func (a Args) Len() int { return len(a.values) }

// decodeArgs validates payload against op and returns the typed arguments.
func decodeArgs(op Operation, payload any) (Args, *CallError) {
	args := Args{values: make(map[string]any, len(op.Args))}

	if op.Shape == ShapeNone {
		return args, nil
	}

	named, cerr := namedValues(op, payload)
	if cerr != nil {
		return args, cerr
	}

	for _, spec := range op.Args {
		raw, ok := named[spec.Name]
		if !ok || raw == nil {
			if spec.Required() {
				return args, invalidArgument(op.Name, spec.Name, "missing required argument %q", spec.Name)
			}
			args.values[spec.Name] = spec.Default
			continue
		}

		v, err := coerce(spec.Kind, raw)
		if err != nil {
			return args, invalidArgument(op.Name, spec.Name, "argument %q: %v", spec.Name, err)
		}
		args.values[spec.Name] = v
	}
	return args, nil
}

// namedValues normalizes the accepted payload layouts into a map.
func namedValues(op Operation, payload any) (map[string]any, *CallError) {
	switch p := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return p, nil
	case map[string]string:
		m := make(map[string]any, len(p))
		for k, v := range p {
			m[k] = v
		}
		return m, nil
	case string:
		if op.Shape == ShapeBlob && len(op.Args) > 0 {
			return map[string]any{op.Args[0].Name: p}, nil
		}
	case []byte:
		if op.Shape == ShapeBlob && len(op.Args) > 0 {
			return map[string]any{op.Args[0].Name: string(p)}, nil
		}
	}
	return nil, invalidArgument(op.Name, "", "expected a map of arguments, got %T", payload)
}

func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case KindInt:
		return toInt(v)
	case KindBlob:
		return toBlob(v)
	default:
		return nil, fmt.Errorf("unknown kind %d", kind)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		// float64(math.MaxInt) rounds up, so the upper bound is exclusive.
		if n >= math.MaxInt || n < math.MinInt {
			return 0, fmt.Errorf("integer %v out of range", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}

// toBlob accepts serialized JSON text, or a decoded JSON value which is re-encoded.
func toBlob(v any) (string, error) {
	switch b := v.(type) {
	case string:
		if !json.Valid([]byte(b)) {
			return "", fmt.Errorf("not valid JSON")
		}
		return b, nil
	case []byte:
		if !json.Valid(b) {
			return "", fmt.Errorf("not valid JSON")
		}
		return string(b), nil
	case json.RawMessage:
		if !json.Valid(b) {
			return "", fmt.Errorf("not valid JSON")
		}
		return string(b), nil
	case map[string]any, []any:
		data, err := json.Marshal(b)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("expected serialized JSON, got %T", v)
	}
}
