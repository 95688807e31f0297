package pushclient_test

import (
	"context"
	"sync"

	"github.com/agendaclin/agendaclin/pkg/pushclient"
)

const (
	testPublicKey = "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM"
	testAuth      = "tBHItJI5svbpez7KI4CCXg"
	testEndpoint  = "https://push.example.test/send/device-1"
)

var allCapabilities = pushclient.Capabilities{Workers: true, PushManager: true, Notifications: true}

type fakeRegistration struct {
	mu           sync.Mutex
	sub          *pushclient.Subscription
	getErr       error
	subscribeErr error
	blockCreate  bool
	unsubErr     error
	created      []pushclient.SubscribeOptions
	unsubscribed int
}

func (r *fakeRegistration) GetSubscription(context.Context) (*pushclient.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.sub, nil
}

func (r *fakeRegistration) Subscribe(ctx context.Context, opts pushclient.SubscribeOptions) (*pushclient.Subscription, error) {
	if r.blockCreate {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, opts)
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.sub = &pushclient.Subscription{Endpoint: testEndpoint, P256dh: testPublicKey, Auth: testAuth}
	return r.sub, nil
}

func (r *fakeRegistration) Unsubscribe(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubErr != nil {
		return r.unsubErr
	}
	r.sub = nil
	r.unsubscribed++
	return nil
}

type fakePlatform struct {
	caps        pushclient.Capabilities
	permission  pushclient.PermissionState
	answer      pushclient.PermissionState
	requestErr  error
	existing    *fakeRegistration
	worker      *fakeRegistration
	registerErr error
	registered  int
	prompted    int
	controlled  bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		caps:       allCapabilities,
		permission: pushclient.PermissionDefault,
		answer:     pushclient.PermissionGranted,
		worker:     &fakeRegistration{},
		controlled: true,
	}
}

func (p *fakePlatform) Capabilities() pushclient.Capabilities { return p.caps }

func (p *fakePlatform) Permission() pushclient.PermissionState { return p.permission }

func (p *fakePlatform) RequestPermission(context.Context) (pushclient.PermissionState, error) {
	p.prompted++
	if p.requestErr != nil {
		return "", p.requestErr
	}
	p.permission = p.answer
	return p.answer, nil
}

func (p *fakePlatform) GetRegistration(context.Context, string) (pushclient.Registration, error) {
	if p.existing == nil {
		return nil, nil
	}
	return p.existing, nil
}

func (p *fakePlatform) Register(_ context.Context, scriptURL, scope string) (pushclient.Registration, error) {
	if p.registerErr != nil {
		return nil, p.registerErr
	}
	if scriptURL != pushclient.WorkerPath || scope != pushclient.WorkerScope {
		panic("unexpected worker registration " + scriptURL + " " + scope)
	}
	p.registered++
	p.existing = p.worker
	return p.worker, nil
}

func (p *fakePlatform) Controlled() bool { return p.controlled }

func (p *fakePlatform) Device() pushclient.DeviceInfo {
	return pushclient.DeviceInfo{Platform: "web", UserAgent: "Mozilla/5.0 (test)"}
}

type fakeStore struct {
	mu        sync.Mutex
	saved     []pushclient.Record
	deleted   []string
	saveErr   error
	deleteErr error
}

func (s *fakeStore) Save(_ context.Context, rec pushclient.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, endpoint)
	return nil
}
