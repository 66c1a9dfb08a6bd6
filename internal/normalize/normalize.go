// Package normalize turns named push-channel frames into typed events.
//
// Event names encode the entity type and the action (user_created,
// tenant_deleted, ...). A handful of older names do not follow that pattern
// and are mapped through an explicit table; payment_status for instance
// identifies its payment by transaction_id rather than id.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/erauner12/propsync/internal/entity"
)

// Action is the kind of change an event describes
type Action int

const (
	// Unrecognized marks an event name with no mapping. It never reaches a store.
	Unrecognized Action = iota
	Created
	Updated
	Deleted
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unrecognized"
	}
}

// Event is a normalized push notification.
// Exactly one of ID and Key identifies the record; Key must be resolved
// against the store before the event can be applied.
type Event struct {
	Name       string
	Type       entity.Type
	Action     Action
	ID         int64
	Key        entity.Key
	Payload    map[string]any // attributes to apply, nil for Deleted
	Body       map[string]any // the decoded frame, including fields not applied
	ReceivedAt time.Time
}

// Keyed reports whether the event is identified by a secondary key
func (e Event) Keyed() bool {
	return e.ID == 0 && e.Key.Field != ""
}

type rule struct {
	typ    entity.Type
	action Action
	keys   []string // identifying fields, most specific first
	fields []string // payload projection, nil keeps the whole body
}

var (
	idOnly       = []string{"id"}
	errNotObject = errors.New("body is neither an object nor an id")
)

var prefixes = map[string]entity.Type{
	"user":        entity.User,
	"property":    entity.Property,
	"tenant":      entity.Tenancy,
	"maintenance": entity.MaintenanceRequest,
	"payment":     entity.Payment,
}

var suffixes = map[string]Action{
	"created": Created,
	"updated": Updated,
	"deleted": Deleted,
}

var legacy = map[string]rule{
	"maintenance_request": {typ: entity.MaintenanceRequest, action: Created},
	"maintenance_update":  {typ: entity.MaintenanceRequest, action: Updated},
	"payment_initiated":   {typ: entity.Payment, action: Created},
	"payment_status":      {typ: entity.Payment, action: Updated, keys: []string{"transaction_id", "id"}, fields: []string{"status"}},
	"email_approved":      {typ: entity.AllowedEmail, action: Created},
	"email_removed":       {typ: entity.AllowedEmail, action: Deleted, keys: []string{"email", "id"}},
}

// TrayEvents feed the notification tray in addition to their store
var TrayEvents = []string{"tenant_created", "email_approved"}

func lookup(name string) (rule, bool) {
	if r, ok := legacy[name]; ok {
		return r, true
	}
	i := strings.LastIndexByte(name, '_')
	if i <= 0 {
		return rule{}, false
	}
	typ, ok := prefixes[name[:i]]
	if !ok {
		return rule{}, false
	}
	action, ok := suffixes[name[i+1:]]
	if !ok {
		return rule{}, false
	}
	return rule{typ: typ, action: action}, true
}

// Normalize maps a frame to an Event. Unknown names yield an Unrecognized
// event and no error. A body without a usable identifier, or one that is not
// JSON, yields *MalformedEventError.
func Normalize(name string, data []byte, receivedAt time.Time) (Event, error) {
	ev := Event{Name: name, ReceivedAt: receivedAt}

	r, ok := lookup(name)
	if !ok {
		return ev, nil
	}
	ev.Type, ev.Action = r.typ, r.action

	body, err := decodeBody(data)
	if err != nil {
		return Event{}, &MalformedEventError{Name: name, Reason: "undecodable body", Err: err}
	}
	ev.Body = body

	keys := r.keys
	if keys == nil {
		keys = idOnly
	}
	found := false
	for _, k := range keys {
		v, present := body[k]
		if !present || v == nil || v == "" {
			continue
		}
		if k == "id" {
			id, err := entity.ParseID(v)
			if err != nil {
				return Event{}, &MalformedEventError{Name: name, Reason: "invalid id", Err: err}
			}
			ev.ID = id
		} else {
			if !scalar(v) {
				return Event{}, &MalformedEventError{Name: name, Reason: "invalid " + k}
			}
			ev.Key = entity.Key{Field: k, Value: v}
		}
		found = true
		break
	}
	if !found {
		return Event{}, &MalformedEventError{Name: name, Reason: "no identifier in " + strings.Join(keys, ", "), Err: entity.ErrMissingID}
	}

	switch {
	case ev.Action == Deleted:
		ev.Payload = nil
	case r.fields != nil:
		ev.Payload = make(map[string]any, len(r.fields))
		for _, f := range r.fields {
			if v, ok := body[f]; ok {
				ev.Payload[f] = v
			}
		}
	default:
		ev.Payload = body
	}
	return ev, nil
}

// decodeBody accepts an object, or a bare scalar which is taken as the id
func decodeBody(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case float64, string:
		return map[string]any{"id": x}, nil
	default:
		return nil, errNotObject
	}
}

func scalar(v any) bool {
	switch v.(type) {
	case string, float64, json.Number:
		return true
	}
	return false
}

// EventsFor lists every event name that carries changes for a type
func EventsFor(t entity.Type) []string {
	var names []string
	for prefix, pt := range prefixes {
		if pt != t {
			continue
		}
		for _, s := range []string{"created", "updated", "deleted"} {
			names = append(names, prefix+"_"+s)
		}
	}
	for name, r := range legacy {
		if r.typ == t {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// TypeOf reports which entity type an event name carries
func TypeOf(name string) (entity.Type, bool) {
	r, ok := lookup(name)
	return r.typ, ok
}
