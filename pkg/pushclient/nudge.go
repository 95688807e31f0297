package pushclient

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Prefs is device-local key/value storage. Nudge markers are kept here and
// are never sent to the server.
type Prefs interface {
	Bool(key string) (bool, error)
	SetBool(key string, value bool) error
}

// MemoryPrefs is an in-process Prefs.
type MemoryPrefs struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewMemoryPrefs creates an empty MemoryPrefs.
func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{values: make(map[string]bool)}
}

// Bool returns the value stored under key, false when unset.
func (p *MemoryPrefs) Bool(key string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[key], nil
}

// SetBool stores value under key.
func (p *MemoryPrefs) SetBool(key string, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

const (
	dismissedPrefix = "push_nudge_dismissed:"
	promptedPrefix  = "push_nudge_prompted:"
)

// DeviceState is what the nudge needs to know about the device.
// *Manager implements it.
type DeviceState interface {
	IsPushSupported() bool
	PermissionState() PermissionState
	CurrentSubscription(ctx context.Context) (*Subscription, error)
}

// NudgeConfig holds configuration for a Nudge.
type NudgeConfig struct {
	Device   DeviceState
	Settings SettingsProvider
	Prefs    Prefs
	Logger   zerolog.Logger
}

// Nudge decides whether to ask a signed-in user to enable notifications.
type Nudge struct {
	device   DeviceState
	settings SettingsProvider
	prefs    Prefs
	logger   zerolog.Logger
}

// NewNudge creates a nudge controller.
func NewNudge(cfg NudgeConfig) *Nudge {
	prefs := cfg.Prefs
	if prefs == nil {
		prefs = NewMemoryPrefs()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = StaticSettings{}
	}
	return &Nudge{
		device:   cfg.Device,
		settings: settings,
		prefs:    prefs,
		logger:   cfg.Logger,
	}
}

// ShouldPrompt reports whether userID should see the opt-in prompt: push is
// supported, the operator flag is on, permission is not denied, the device
// has no subscription and the user has not dismissed the prompt.
func (n *Nudge) ShouldPrompt(ctx context.Context, userID string) bool {
	if userID == "" || !n.device.IsPushSupported() {
		return false
	}
	if !n.settings.NudgeEnabled(ctx) {
		return false
	}
	if n.device.PermissionState() == PermissionDenied {
		return false
	}

	sub, err := n.device.CurrentSubscription(ctx)
	if err != nil {
		n.logger.Debug().Err(err).Msg("checking current subscription for nudge")
		return false
	}
	if sub != nil {
		return false
	}

	return !n.Dismissed(userID)
}

// Dismiss records that userID declined the prompt on this device.
func (n *Nudge) Dismiss(userID string) error {
	return n.prefs.SetBool(dismissedPrefix+userID, true)
}

// MarkPrompted records that userID has been shown the prompt on this device.
func (n *Nudge) MarkPrompted(userID string) error {
	return n.prefs.SetBool(promptedPrefix+userID, true)
}

// Dismissed reports whether userID dismissed the prompt on this device.
func (n *Nudge) Dismissed(userID string) bool {
	return n.flag(dismissedPrefix + userID)
}

// Prompted reports whether userID has been shown the prompt on this device.
func (n *Nudge) Prompted(userID string) bool {
	return n.flag(promptedPrefix + userID)
}

func (n *Nudge) flag(key string) bool {
	v, err := n.prefs.Bool(key)
	if err != nil {
		n.logger.Debug().Err(err).Str("key", key).Msg("reading nudge preference")
		return false
	}
	return v
}
