// Package pushpayload defines the JSON document carried inside an encrypted
// web push message. The server renders it and the delivery worker displays it.
package pushpayload

import "encoding/json"

// Defaults shared by the renderer and the delivery worker.
const (
	DefaultTitle = "AgendaClin"
	DefaultIcon  = "/icons/icon-192.png"
	DefaultBadge = "/icons/badge-72.png"
	DefaultURL   = "/agenda"

	// Tag groups appointment notifications so a newer one replaces an older one.
	Tag = "agendaclin-appointments"
)

// Payload is the rendered notification.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	URL   string `json:"url,omitempty"`
	Data  Data   `json:"data"`
}

// Data is the structured part of a payload.
type Data struct {
	AppointmentID string `json:"appointmentId,omitempty"`
	Kind          string `json:"kind"`
}

// Marshal encodes p as JSON.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Parse decodes a payload. It fails on anything that is not a JSON object.
func Parse(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}
