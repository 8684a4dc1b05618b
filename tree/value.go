// Package tree fetches bounded snapshots of a remote hierarchical key-value
// store and models the values it returns.
package tree

import (
	"encoding/json"
	"sort"
)

// Kind discriminates the closed set of shapes a database value can take.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// Value is an immutable, width-bounded view of one database subtree.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Str  string
	Num  float64
	Bool bool

	// Keys holds object child keys in lexicographic order; Children is
	// keyed by them. Both are capped to the fetch limit per level.
	Keys     []string
	Children map[string]*Value

	Elems []*Value
}

// Interpret converts decoded JSON into a Value, keeping at most limit
// children per object or array level. The cap applies recursively with no
// depth bound; limit <= 0 means unbounded.
func Interpret(raw any, limit int) *Value {
	switch v := raw.(type) {
	case nil:
		return &Value{Kind: KindNull}
	case string:
		return &Value{Kind: KindString, Str: v}
	case bool:
		return &Value{Kind: KindBool, Bool: v}
	case float64:
		return &Value{Kind: KindNumber, Num: v}
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return &Value{Kind: KindString, Str: v.String()}
		}
		return &Value{Kind: KindNumber, Num: n}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if limit > 0 && len(keys) > limit {
			keys = keys[:limit]
		}
		children := make(map[string]*Value, len(keys))
		for _, k := range keys {
			children[k] = Interpret(v[k], limit)
		}
		return &Value{Kind: KindObject, Keys: keys, Children: children}
	case []any:
		elems := v
		if limit > 0 && len(elems) > limit {
			elems = elems[:limit]
		}
		out := make([]*Value, len(elems))
		for i, e := range elems {
			out[i] = Interpret(e, limit)
		}
		return &Value{Kind: KindArray, Elems: out}
	default:
		// json decoding into any never yields other types.
		return &Value{Kind: KindNull}
	}
}
