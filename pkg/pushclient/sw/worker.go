// Package sw holds the event handlers of the background delivery worker:
// showing a notification when a push arrives and routing the user to the
// agenda when they click it. It keeps no state and makes no network calls.
package sw

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/pkg/pushpayload"
)

// DefaultBody is shown when a push arrives without a body.
const DefaultBody = "Você tem uma atualização na agenda."

// Notification is an OS-level notification.
type Notification struct {
	Title    string
	Body     string
	Icon     string
	Badge    string
	Tag      string
	Renotify bool
	Data     NotificationData
}

// NotificationData travels with the notification to the click handler.
type NotificationData struct {
	URL           string
	AppointmentID string
	Kind          string
}

// Window is an open application window.
type Window interface {
	URL() string
	Focus(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
}

// Host is the worker's execution environment.
type Host interface {
	ShowNotification(ctx context.Context, n Notification) error
	Windows(ctx context.Context) ([]Window, error)
	OpenWindow(ctx context.Context, url string) error
}

// ClickEvent is delivered when the user clicks a notification.
type ClickEvent struct {
	Notification Notification

	// Close dismisses the clicked notification.
	Close func()
}

// Worker handles push and notificationclick events.
type Worker struct {
	host   Host
	logger zerolog.Logger
}

// New creates a worker bound to host.
func New(host Host, logger zerolog.Logger) *Worker {
	return &Worker{host: host, logger: logger}
}

// HandlePush shows a notification for data. A body that is not a JSON
// payload is shown verbatim under the default title.
func (w *Worker) HandlePush(ctx context.Context, data []byte) error {
	n := notificationFor(data)
	if err := w.host.ShowNotification(ctx, n); err != nil {
		return fmt.Errorf("showing notification: %w", err)
	}
	return nil
}

// HandleNotificationClick closes the notification and brings the user to its
// URL, reusing the first window that can be focused and navigated.
func (w *Worker) HandleNotificationClick(ctx context.Context, ev ClickEvent) error {
	if ev.Close != nil {
		ev.Close()
	}

	target := ev.Notification.Data.URL
	if target == "" {
		target = pushpayload.DefaultURL
	}

	windows, err := w.host.Windows(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("listing windows")
	}
	for _, win := range windows {
		if err := win.Focus(ctx); err != nil {
			continue
		}
		if err := win.Navigate(ctx, target); err != nil {
			w.logger.Debug().Err(err).Str("from", win.URL()).Msg("navigating window")
			continue
		}
		return nil
	}

	if err := w.host.OpenWindow(ctx, target); err != nil {
		return fmt.Errorf("opening window: %w", err)
	}
	return nil
}

func notificationFor(data []byte) Notification {
	n := Notification{
		Title:    pushpayload.DefaultTitle,
		Icon:     pushpayload.DefaultIcon,
		Badge:    pushpayload.DefaultBadge,
		Tag:      pushpayload.Tag,
		Renotify: true,
		Data:     NotificationData{URL: pushpayload.DefaultURL},
	}

	p, err := pushpayload.Parse(data)
	if err != nil {
		n.Body = string(data)
		if n.Body == "" {
			n.Body = DefaultBody
		}
		return n
	}

	if p.Title != "" {
		n.Title = p.Title
	}
	n.Body = p.Body
	if n.Body == "" {
		n.Body = DefaultBody
	}
	if p.Icon != "" {
		n.Icon = p.Icon
	}
	if p.Badge != "" {
		n.Badge = p.Badge
	}
	if p.URL != "" {
		n.Data.URL = p.URL
	}
	n.Data.AppointmentID = p.Data.AppointmentID
	n.Data.Kind = p.Data.Kind
	return n
}
