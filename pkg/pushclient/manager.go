package pushclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/pkg/vapidkey"
)

// ManagerConfig holds configuration for the subscription manager.
type ManagerConfig struct {
	Platform Platform

	// Store receives subscription changes. If nil, nothing is synced.
	Store Store

	// PublicKey is the server's VAPID public key in base64url form.
	PublicKey string

	// Timeout bounds each platform call. Zero means wait for as long as the
	// caller's context allows.
	Timeout time.Duration

	// RequireController fails Subscribe with no_controller while the worker
	// does not yet control the page.
	RequireController bool

	Logger zerolog.Logger
}

// Result describes a completed Subscribe, Unsubscribe or Resync.
type Result struct {
	// Subscription is the subscription that was saved or removed, if any.
	Subscription *Subscription

	// Created is true when Subscribe had to create a new platform subscription.
	Created bool

	// SyncErr is set when the device side succeeded but the server record
	// could not be updated.
	SyncErr *SyncError
}

// Manager drives the device through enabling and disabling push.
type Manager struct {
	platform          Platform
	store             Store
	publicKey         string
	timeout           time.Duration
	requireController bool
	logger            zerolog.Logger

	mu           sync.Mutex
	registration Registration
}

// NewManager creates a subscription manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		platform:          cfg.Platform,
		store:             cfg.Store,
		publicKey:         cfg.PublicKey,
		timeout:           cfg.Timeout,
		requireController: cfg.RequireController,
		logger:            cfg.Logger.With().Str("component", "pushclient").Logger(),
	}
}

// IsPushSupported reports whether the host has workers, a push manager and
// notifications.
func (m *Manager) IsPushSupported() bool {
	return m.platform.Capabilities().Supported()
}

// PermissionState returns the notification permission without prompting.
func (m *Manager) PermissionState() PermissionState {
	if !m.platform.Capabilities().Notifications {
		return PermissionUnsupported
	}
	return m.platform.Permission()
}

// EnsureWorkerRegistered returns the worker registration, registering the
// worker on first use. It returns nil if push is unsupported or registration
// failed; failures are logged and a later call tries again.
func (m *Manager) EnsureWorkerRegistered(ctx context.Context) Registration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registration != nil {
		return m.registration
	}
	if !m.IsPushSupported() {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	reg, err := m.platform.GetRegistration(ctx, WorkerScope)
	if err != nil {
		m.logger.Warn().Err(err).Msg("looking up worker registration")
	}
	if reg == nil {
		reg, err = m.platform.Register(ctx, WorkerPath, WorkerScope)
		if err != nil {
			m.logger.Warn().Err(err).Str("script", WorkerPath).Msg("registering worker")
			return nil
		}
	}

	m.registration = reg
	return reg
}

// Subscribe enables push on this device and reports the subscription to the
// store. Failures before a platform subscription exists are returned as
// *Failure. A store failure after that is reported in Result.SyncErr.
func (m *Manager) Subscribe(ctx context.Context, userID string) (*Result, error) {
	if !m.IsPushSupported() {
		return nil, fail(ReasonUnsupported, nil)
	}

	if err := m.requestPermission(ctx); err != nil {
		return nil, err
	}

	if m.publicKey == "" {
		return nil, fail(ReasonMissingVAPIDPublicKey, nil)
	}
	appKey, err := vapidkey.Decode(m.publicKey)
	if err != nil {
		return nil, fail(ReasonMissingVAPIDPublicKey, err)
	}

	reg := m.EnsureWorkerRegistered(ctx)
	if reg == nil {
		return nil, fail(ReasonNoWorker, nil)
	}
	if m.requireController && !m.platform.Controlled() {
		return nil, fail(ReasonNoController, nil)
	}

	sub, created, err := m.obtainSubscription(ctx, reg, appKey)
	if err != nil {
		return nil, err
	}

	result := &Result{Subscription: sub, Created: created}
	result.SyncErr = m.save(ctx, sub, userID)
	return result, nil
}

// Unsubscribe disables push on this device. The server record is deleted
// first; if that fails the platform subscription is still dropped and the
// failure is reported in Result.SyncErr.
func (m *Manager) Unsubscribe(ctx context.Context) (*Result, error) {
	reg, err := m.existingRegistration(ctx)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return &Result{}, nil
	}

	sub, err := m.currentFrom(ctx, reg)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Result{}, nil
	}

	result := &Result{Subscription: sub}
	if m.store != nil {
		if err := m.store.Delete(ctx, sub.Endpoint); err != nil {
			result.SyncErr = asSyncError(err)
			m.logger.Warn().Err(err).Str("kind", string(result.SyncErr.Kind)).
				Msg("removing subscription from store, continuing with local unsubscribe")
		}
	}

	pctx, cancel := m.bound(ctx)
	defer cancel()
	if err := reg.Unsubscribe(pctx); err != nil {
		return nil, platformFailure(pctx, err)
	}

	return result, nil
}

// CurrentSubscription returns the platform subscription for this device, or nil.
func (m *Manager) CurrentSubscription(ctx context.Context) (*Subscription, error) {
	reg, err := m.existingRegistration(ctx)
	if err != nil || reg == nil {
		return nil, err
	}
	return m.currentFrom(ctx, reg)
}

// Resync re-saves the current platform subscription, if any. Call it on app
// start so a subscription whose first save failed reaches the store.
// It never prompts the user.
func (m *Manager) Resync(ctx context.Context, userID string) (*Result, error) {
	if !m.IsPushSupported() || m.PermissionState() != PermissionGranted {
		return &Result{}, nil
	}

	sub, err := m.CurrentSubscription(ctx)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Result{}, nil
	}

	return &Result{Subscription: sub, SyncErr: m.save(ctx, sub, userID)}, nil
}

func (m *Manager) requestPermission(ctx context.Context) error {
	if m.platform.Permission() == PermissionGranted {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	state, err := m.platform.RequestPermission(ctx)
	if err != nil {
		if isTimeout(ctx, err) {
			return fail(ReasonTimeout, err)
		}
		return fail(ReasonDefault, err)
	}

	switch state {
	case PermissionGranted:
		return nil
	case PermissionDenied:
		return fail(ReasonDenied, nil)
	case PermissionUnsupported:
		return fail(ReasonUnsupported, nil)
	default:
		return fail(ReasonDefault, nil)
	}
}

func (m *Manager) obtainSubscription(ctx context.Context, reg Registration, appKey []byte) (*Subscription, bool, error) {
	sub, err := m.currentFrom(ctx, reg)
	if err != nil {
		return nil, false, err
	}
	if sub != nil {
		return sub, false, nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	sub, err = reg.Subscribe(ctx, SubscribeOptions{
		ApplicationServerKey: appKey,
		UserVisibleOnly:      true,
	})
	if err != nil {
		return nil, false, platformFailure(ctx, err)
	}
	if sub == nil || sub.Endpoint == "" {
		return nil, false, fail(ReasonNetwork, errors.New("push service returned no subscription"))
	}
	return sub, true, nil
}

// existingRegistration returns the cached or already registered worker
// without registering one.
func (m *Manager) existingRegistration(ctx context.Context) (Registration, error) {
	if !m.IsPushSupported() {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registration != nil {
		return m.registration, nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	reg, err := m.platform.GetRegistration(ctx, WorkerScope)
	if err != nil {
		return nil, platformFailure(ctx, err)
	}
	if reg != nil {
		m.registration = reg
	}
	return reg, nil
}

func (m *Manager) currentFrom(ctx context.Context, reg Registration) (*Subscription, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()

	sub, err := reg.GetSubscription(ctx)
	if err != nil {
		return nil, platformFailure(ctx, err)
	}
	return sub, nil
}

func (m *Manager) save(ctx context.Context, sub *Subscription, userID string) *SyncError {
	if m.store == nil {
		return nil
	}

	err := m.store.Save(ctx, Record{
		Subscription: *sub,
		UserID:       userID,
		Device:       m.platform.Device(),
	})
	if err == nil {
		return nil
	}

	se := asSyncError(err)
	m.logger.Warn().Err(err).
		Str("kind", string(se.Kind)).
		Int("status", se.Status).
		Msg("saving subscription to store")
	return se
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func platformFailure(ctx context.Context, err error) *Failure {
	if isTimeout(ctx, err) {
		return fail(ReasonTimeout, err)
	}
	return fail(ReasonNetwork, err)
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
