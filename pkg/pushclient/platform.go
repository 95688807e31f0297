// Package pushclient runs on the device. It walks a user through enabling web
// push, keeps the server's subscription record in step with the platform, and
// decides when to nudge a signed-in user to opt in.
//
// The browser (or any other host) is reached only through Platform, so the
// state machine can be driven by a real binding or by a fake in tests.
package pushclient

import "context"

// Worker registration constants. The script must be served over HTTPS (or
// loopback) at the application root.
const (
	WorkerPath  = "/sw.js"
	WorkerScope = "/"
)

// PermissionState is the host's notification permission.
type PermissionState string

// Permission states.
const (
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionDefault     PermissionState = "default"
	PermissionUnsupported PermissionState = "unsupported"
)

// Capabilities reports which of the APIs push depends on are present.
type Capabilities struct {
	Workers       bool
	PushManager   bool
	Notifications bool
}

// Supported reports whether every capability is present.
func (c Capabilities) Supported() bool {
	return c.Workers && c.PushManager && c.Notifications
}

// DeviceInfo is sent along with a subscription as metadata.
type DeviceInfo struct {
	Platform  string
	UserAgent string
}

// Subscription is a platform push subscription.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// SubscribeOptions are passed to Registration.Subscribe.
type SubscribeOptions struct {
	// ApplicationServerKey is the decoded VAPID public key.
	ApplicationServerKey []byte

	// UserVisibleOnly requests that every push results in a visible notification.
	UserVisibleOnly bool
}

// Registration is a registered background worker.
type Registration interface {
	// GetSubscription returns the current subscription, or nil if there is none.
	GetSubscription(ctx context.Context) (*Subscription, error)

	// Subscribe creates a subscription with the push service.
	Subscribe(ctx context.Context, opts SubscribeOptions) (*Subscription, error)

	// Unsubscribe drops the current subscription.
	Unsubscribe(ctx context.Context) error
}

// Platform is the host environment.
type Platform interface {
	Capabilities() Capabilities

	// Permission returns the current permission without prompting.
	Permission() PermissionState

	// RequestPermission prompts the user and blocks until they answer.
	RequestPermission(ctx context.Context) (PermissionState, error)

	// GetRegistration returns the worker registered for scope, or nil.
	GetRegistration(ctx context.Context, scope string) (Registration, error)

	// Register registers the worker script and waits until it is ready.
	Register(ctx context.Context, scriptURL, scope string) (Registration, error)

	// Controlled reports whether a worker currently controls the page.
	Controlled() bool

	Device() DeviceInfo
}
