// Package notify renders appointment events into push payloads and fans them
// out to every stored subscription.
package notify

import (
	"bytes"
	"encoding/json"
)

// Kind is the type of appointment event.
type Kind string

// Event kinds. Anything else is treated as KindUpdate.
const (
	KindTest       Kind = "test"
	KindCreate     Kind = "create"
	KindReschedule Kind = "reschedule"
	KindCancel     Kind = "cancel"
	KindDelete     Kind = "delete"
	KindUpdate     Kind = "update"
)

// ParseKind maps s to a known Kind. Matching is exact; anything else,
// including other casings, is an update.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindTest, KindCreate, KindReschedule, KindCancel, KindDelete, KindUpdate:
		return k
	default:
		return KindUpdate
	}
}

// Appointment is the subset of an appointment used for templating.
// All fields are optional.
type Appointment struct {
	ID   string `json:"id,omitempty"`
	Date string `json:"date,omitempty"` // YYYY-MM-DD
	Time string `json:"time,omitempty"` // HH:MM[:SS]
}

// UnmarshalJSON accepts the id as either a JSON string or a number.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Date string          `json:"date"`
		Time string          `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Date = raw.Date
	a.Time = raw.Time
	a.ID = ""

	id := bytes.TrimSpace(raw.ID)
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return nil
	}
	if id[0] == '"' {
		return json.Unmarshal(id, &a.ID)
	}
	var n json.Number
	if err := json.Unmarshal(id, &n); err != nil {
		return err
	}
	a.ID = n.String()
	return nil
}

// Event is an application event that should reach every subscribed device.
type Event struct {
	Kind        Kind         `json:"type"`
	Appointment *Appointment `json:"appointment,omitempty"`
}
