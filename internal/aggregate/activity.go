// Package aggregate derives dashboard data from store contents: counters,
// store-derived recent activity, the event-driven activity feed and the
// notification tray.
package aggregate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/normalize"
)

// Severity is the display class of an activity line
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Activity is one line of a feed
type Activity struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
}

var labels = map[entity.Type]string{
	entity.User:               "user",
	entity.Property:           "property",
	entity.Tenancy:            "tenant",
	entity.MaintenanceRequest: "maintenance",
	entity.Payment:            "payment",
	entity.AllowedEmail:       "email",
}

// fields reads attributes from the event body first, then the stored record
type fields struct {
	body, record map[string]any
}

func (f fields) get(k string) any {
	if v, ok := f.body[k]; ok && v != nil {
		return v
	}
	return f.record[k]
}

func (f fields) text(k string) string {
	return text(f.get(k))
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Describe renders an applied event as an activity line. record is the
// stored state after the event (before it, for deletions) and may be nil.
func Describe(ev normalize.Event, record map[string]any) Activity {
	f := fields{body: ev.Body, record: record}
	a := Activity{
		Type: labels[ev.Type],
		Time: ev.ReceivedAt,
	}
	if ev.Keyed() {
		a.ID = fmt.Sprintf("%s-%v", a.Type, ev.Key.Value)
	} else {
		a.ID = fmt.Sprintf("%s-%d", a.Type, ev.ID)
	}

	switch ev.Type {
	case entity.MaintenanceRequest:
		switch ev.Action {
		case normalize.Created:
			a.Message, a.Severity = maintenanceLine(f)
			if t, ok := parseTime(f.get("created_at")); ok {
				a.Time = t
			}
		case normalize.Updated:
			a.Message = fmt.Sprintf("Maintenance %s: %s", f.text("status"), f.text("title"))
			a.Severity = SeverityInfo
		default:
			a.Message, a.Severity = "Maintenance request removed", SeverityDanger
		}

	case entity.Payment:
		switch ev.Action {
		case normalize.Created:
			a.Message = fmt.Sprintf("Payment of KSH%s initiated via %s", f.text("amount"), f.text("payment_method"))
			a.Severity = SeverityWarning
			if t, ok := parseTime(f.get("created_at")); ok {
				a.Time = t
			}
		case normalize.Updated:
			status := f.text("status")
			a.Message = fmt.Sprintf("Payment %s: %s", status, f.text("message"))
			a.Severity = SeverityDanger
			if status == "paid" {
				a.Severity = SeveritySuccess
			}
		default:
			a.Message, a.Severity = "Payment removed", SeverityDanger
		}

	case entity.User:
		switch ev.Action {
		case normalize.Created:
			a.Message, a.Severity = fmt.Sprintf("New %s added: %s", f.text("role"), f.text("name")), SeverityInfo
		case normalize.Updated:
			a.Message, a.Severity = fmt.Sprintf("%s updated: %s", f.text("role"), f.text("name")), SeverityInfo
		default:
			a.Message, a.Severity = fmt.Sprintf("%s deleted", f.text("role")), SeverityDanger
		}

	case entity.Property:
		switch ev.Action {
		case normalize.Created:
			a.Message, a.Severity = "New property added: "+f.text("name"), SeverityInfo
		case normalize.Updated:
			a.Message, a.Severity = "Property updated: "+f.text("name"), SeverityInfo
		default:
			a.Message, a.Severity = "Property deleted", SeverityDanger
		}

	case entity.Tenancy:
		switch ev.Action {
		case normalize.Created:
			a.Message, a.Severity = "New tenant assigned to property "+f.text("property_id"), SeveritySuccess
		case normalize.Updated:
			a.Message, a.Severity = "Tenant updated for property "+f.text("property_id"), SeveritySuccess
		default:
			a.Message, a.Severity = "Tenant removed", SeverityDanger
		}

	case entity.AllowedEmail:
		if ev.Action == normalize.Deleted {
			a.Message, a.Severity = fmt.Sprintf("Email %s removed", f.text("email")), SeverityDanger
		} else {
			a.Message, a.Severity = approvedLine(f), SeveritySuccess
		}
	}
	return a
}

func maintenanceLine(f fields) (string, Severity) {
	sev := SeverityWarning
	if f.text("priority") == "urgent" {
		sev = SeverityDanger
	}
	return fmt.Sprintf("%s priority: %s", f.text("priority"), f.text("title")), sev
}

func approvedLine(f fields) string {
	target := f.text("property_name")
	if target == "" {
		target = f.text("role")
	}
	return fmt.Sprintf("Email %s approved for %s", f.text("email"), target)
}

// describeRecord renders a stored record for the store-derived landlord feed
func describeRecord(e entity.Entity) (Activity, bool) {
	f := fields{record: e.Attrs}
	a := Activity{
		ID:   fmt.Sprintf("%s-%d", labels[e.Type], e.ID),
		Type: labels[e.Type],
	}
	a.Time, _ = parseTime(e.Attrs["created_at"])

	switch e.Type {
	case entity.Payment:
		verb, sev := "pending", SeverityWarning
		if f.text("status") == "paid" {
			verb, sev = "received", SeveritySuccess
		}
		a.Message = fmt.Sprintf("Payment of KSH%s %s via %s", f.text("amount"), verb, f.text("payment_method"))
		a.Severity = sev
	case entity.MaintenanceRequest:
		a.Message, a.Severity = maintenanceLine(f)
	default:
		return Activity{}, false
	}
	return a, true
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromServer converts one /api/activity item ({type, message, created_at}).
// Items without a message are skipped.
func FromServer(item map[string]any, index int) (Activity, bool) {
	f := fields{record: item}
	msg := f.text("message")
	if msg == "" {
		return Activity{}, false
	}
	a := Activity{
		Type:     f.text("type"),
		Message:  msg,
		Severity: SeverityInfo,
	}
	a.Time, _ = parseTime(item["created_at"])
	if id := f.text("id"); id != "" {
		a.ID = "activity-" + id
	} else {
		a.ID = fmt.Sprintf("activity-%d", index)
	}
	switch a.Type {
	case "tenant_created", "email_approved":
		a.Severity = SeveritySuccess
	case "error":
		a.Severity = SeverityDanger
	}
	return a, true
}
