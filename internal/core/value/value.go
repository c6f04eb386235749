package value

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the active variant of a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindInteger
	KindList
	KindSet
	KindHash
)

// String returns the protocol-level type name, as reported by TYPE.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// Value is the tagged union stored under a key. Exactly one variant field
// is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Str  string
	Int  int64
	List []string
	Set  map[string]struct{}
	Hash map[string]string
}

// String creates a string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Integer creates an integer value.
func Integer(n int64) Value {
	return Value{Kind: KindInteger, Int: n}
}

// List creates a list value with the given elements in order.
func List(elems ...string) Value {
	return Value{Kind: KindList, List: append([]string(nil), elems...)}
}

// Set creates a set value with the given members.
func Set(members ...string) Value {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return Value{Kind: KindSet, Set: set}
}

// Hash creates a hash value from the given field map. The map is copied.
func Hash(fields map[string]string) Value {
	hash := make(map[string]string, len(fields))
	for f, v := range fields {
		hash[f] = v
	}
	return Value{Kind: KindHash, Hash: hash}
}

// Clone returns a deep copy. Collection variants never share backing
// storage with the original, so a cloned value handed to a caller cannot
// mutate the keyspace behind the engine's lock.
func (v Value) Clone() Value {
	out := Value{Kind: v.Kind, Str: v.Str, Int: v.Int}
	switch v.Kind {
	case KindList:
		out.List = append([]string(nil), v.List...)
	case KindSet:
		out.Set = make(map[string]struct{}, len(v.Set))
		for m := range v.Set {
			out.Set[m] = struct{}{}
		}
	case KindHash:
		out.Hash = make(map[string]string, len(v.Hash))
		for f, val := range v.Hash {
			out.Hash[f] = val
		}
	}
	return out
}

// Members returns the set members in sorted order.
func (v Value) Members() []string {
	members := make([]string, 0, len(v.Set))
	for m := range v.Set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// wireValue is the JSON envelope used by the snapshot and WAL codecs.
// Pointer fields distinguish an absent variant from a zero one; the set
// is emitted sorted so serialized payloads are byte-stable for
// checksumming.
type wireValue struct {
	Type string            `json:"type"`
	Str  *string           `json:"string,omitempty"`
	Int  *int64            `json:"integer,omitempty"`
	List []string          `json:"list,omitempty"`
	Set  []string          `json:"set,omitempty"`
	Hash map[string]string `json:"hash,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Type: v.Kind.String()}
	switch v.Kind {
	case KindString:
		s := v.Str
		w.Str = &s
	case KindInteger:
		n := v.Int
		w.Int = &n
	case KindList:
		w.List = v.List
	case KindSet:
		w.Set = v.Members()
	case KindHash:
		w.Hash = v.Hash
	default:
		return nil, fmt.Errorf("value: cannot marshal kind %d", v.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case "string":
		if w.Str == nil {
			*v = String("")
			return nil
		}
		*v = String(*w.Str)
	case "integer":
		if w.Int == nil {
			*v = Integer(0)
			return nil
		}
		*v = Integer(*w.Int)
	case "list":
		*v = List(w.List...)
	case "set":
		*v = Set(w.Set...)
	case "hash":
		*v = Hash(w.Hash)
	default:
		return fmt.Errorf("value: unknown type %q", w.Type)
	}
	return nil
}
