package notify

import (
	"net/url"
	"strings"
	"time"

	"github.com/agendaclin/agendaclin/pkg/pushpayload"
)

// template describes the copy for one event kind. Bodies are built as
// action + " " + preposition + " " + date + " às " + time + ".".
type template struct {
	title       string
	action      string
	preposition string
	fixedBody   string
}

var templates = map[Kind]template{
	KindTest: {
		title:     "Notificação de teste",
		fixedBody: "Se você está vendo isto, as notificações push estão funcionando.",
	},
	KindCreate: {
		title:       "Novo atendimento",
		action:      "Atendimento criado",
		preposition: "para",
	},
	KindReschedule: {
		title:       "Atendimento reagendado",
		action:      "Atendimento reagendado",
		preposition: "para",
	},
	KindCancel: {
		title:       "Atendimento cancelado",
		action:      "Atendimento cancelado",
		preposition: "em",
	},
	KindDelete: {
		title:       "Atendimento removido",
		action:      "Atendimento removido",
		preposition: "em",
	},
	KindUpdate: {
		title:       "Atendimento atualizado",
		action:      "Atendimento atualizado",
		preposition: "para",
	},
}

// RendererConfig holds the static parts of every payload.
type RendererConfig struct {
	Icon      string
	Badge     string
	AgendaURL string
}

// Renderer turns events into payloads. Render is a pure function of the
// event and the configuration.
type Renderer struct {
	icon      string
	badge     string
	agendaURL string
}

// NewRenderer creates a renderer, filling empty fields with defaults.
func NewRenderer(cfg RendererConfig) *Renderer {
	r := &Renderer{
		icon:      cfg.Icon,
		badge:     cfg.Badge,
		agendaURL: cfg.AgendaURL,
	}
	if r.icon == "" {
		r.icon = pushpayload.DefaultIcon
	}
	if r.badge == "" {
		r.badge = pushpayload.DefaultBadge
	}
	if r.agendaURL == "" {
		r.agendaURL = pushpayload.DefaultURL
	}
	return r
}

// Render builds the payload for ev.
func (r *Renderer) Render(ev Event) pushpayload.Payload {
	kind := ParseKind(string(ev.Kind))
	tmpl := templates[kind]

	var appt Appointment
	if ev.Appointment != nil {
		appt = *ev.Appointment
	}

	body := tmpl.fixedBody
	if body == "" {
		body = composeBody(tmpl, appt)
	}

	return pushpayload.Payload{
		Title: tmpl.title,
		Body:  body,
		Icon:  r.icon,
		Badge: r.badge,
		URL:   r.targetURL(appt.ID),
		Data: pushpayload.Data{
			AppointmentID: appt.ID,
			Kind:          string(kind),
		},
	}
}

func (r *Renderer) targetURL(appointmentID string) string {
	if appointmentID == "" {
		return r.agendaURL
	}
	return r.agendaURL + "?appointment=" + url.QueryEscape(appointmentID)
}

func composeBody(tmpl template, appt Appointment) string {
	var b strings.Builder
	b.WriteString(tmpl.action)

	if d := formatDate(appt.Date); d != "" {
		b.WriteString(" ")
		b.WriteString(tmpl.preposition)
		b.WriteString(" ")
		b.WriteString(d)
	}
	if t := formatTime(appt.Time); t != "" {
		b.WriteString(" às ")
		b.WriteString(t)
	}

	b.WriteString(".")
	return b.String()
}

// formatDate renders YYYY-MM-DD (optionally followed by a time part) as
// DD/MM/YYYY. Unparseable input is returned trimmed but otherwise unchanged.
func formatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return s
}

// formatTime renders HH:MM[:SS] as HH:MM.
func formatTime(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 5 && s[2] == ':' && s[5] == ':' {
		return s[:5]
	}
	return s
}
