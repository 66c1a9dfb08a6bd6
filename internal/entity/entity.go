package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Type identifies one of the collections a dashboard keeps live
type Type int

const (
	TypeUnknown Type = iota
	User
	Property
	Tenancy
	MaintenanceRequest
	Payment
	AllowedEmail
)

// All lists every concrete entity type in display order
var All = []Type{User, Property, Tenancy, MaintenanceRequest, Payment, AllowedEmail}

var typeNames = map[Type]string{
	User:               "user",
	Property:           "property",
	Tenancy:            "tenancy",
	MaintenanceRequest: "maintenance_request",
	Payment:            "payment",
	AllowedEmail:       "allowed_email",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType parses the String() form of a Type
func ParseType(s string) (Type, bool) {
	for t, name := range typeNames {
		if name == s {
			return t, true
		}
	}
	return TypeUnknown, false
}

// ErrMissingID is returned for records without a usable id
var ErrMissingID = errors.New("missing or invalid id")

// Entity is one record of a collection
type Entity struct {
	Type  Type
	ID    int64
	Attrs map[string]any
}

// MarshalJSON renders the entity the way the API does: a flat object with its attributes
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attrs)+1)
	for k, v := range e.Attrs {
		out[k] = v
	}
	out["id"] = e.ID
	return json.Marshal(out)
}

// String returns the attribute as a string if it holds one
func (e Entity) String(key string) string {
	s, _ := GetString(e.Attrs, key)
	return s
}

// FromAttrs builds an entity from a raw API object, validating its id
func FromAttrs(t Type, attrs map[string]any) (Entity, error) {
	id, err := ParseID(attrs["id"])
	if err != nil {
		return Entity{}, err
	}
	return Entity{Type: t, ID: id, Attrs: attrs}, nil
}

// ParseID converts the loosely typed id values seen on the wire into an int64.
// Accepts JSON numbers (float64 / json.Number), Go integers and decimal strings.
// Zero, negative and fractional values are rejected.
func ParseID(v any) (int64, error) {
	var id int64
	switch x := v.(type) {
	case nil:
		return 0, ErrMissingID
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrMissingID, x)
		}
		id = int64(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMissingID, err)
		}
		id = n
	case int:
		id = int64(x)
	case int32:
		id = int64(x)
	case int64:
		id = x
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMissingID, x)
		}
		id = n
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrMissingID, v)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrMissingID, id)
	}
	return id, nil
}

// GetString safely extracts a string value from a map
func GetString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// GetNumber extracts a numeric attribute. Postgres numeric columns arrive as strings
// ("1500.00"), so decimal strings are accepted too.
func GetNumber(m map[string]any, k string) (float64, bool) {
	switch v := m[k].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// SameValue compares two loosely typed scalar attribute values.
// Numbers compare numerically and a number equals its decimal string form.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as == bs
	}
	af, aok := GetNumber(map[string]any{"v": a}, "v")
	bf, bok := GetNumber(map[string]any{"v": b}, "v")
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

// CloneAttrs returns a shallow copy of an attribute map
func CloneAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Key is a secondary identifying field that has to be resolved to an id
// against the current store contents (e.g. a payment's transaction_id).
type Key struct {
	Field string
	Value any
}

func (k Key) String() string {
	return fmt.Sprintf("%s=%v", k.Field, k.Value)
}
