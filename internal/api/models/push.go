package models

// PushKeys is the key material of a browser push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required,base64key"`
	Auth   string `json:"auth" validate:"required,base64key"`
}

// PushSubscription mirrors the browser's PushSubscription JSON.
type PushSubscription struct {
	Endpoint string   `json:"endpoint" validate:"required,url"`
	Keys     PushKeys `json:"keys"`
}

// SubscribeRequest is the body of POST /push/subscribe.
type SubscribeRequest struct {
	Subscription *PushSubscription `json:"subscription" validate:"required"`
	UserID       *string           `json:"userId,omitempty" validate:"omitempty,max=128"`
	Platform     *string           `json:"platform,omitempty" validate:"omitempty,max=64"`
	UserAgent    *string           `json:"userAgent,omitempty" validate:"omitempty,max=512"`
}

// UnsubscribeRequest is the body of POST /push/unsubscribe.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// OKResponse is the body of successful subscribe and unsubscribe calls.
type OKResponse struct {
	OK bool `json:"ok"`
}

// SendResponse is the body of a successful POST /push/send.
type SendResponse struct {
	OK        bool `json:"ok"`
	Sent      int  `json:"sent"`
	Delivered int  `json:"delivered"`
	Pruned    int  `json:"pruned"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped,omitempty"`
}

// PushConfigResponse is the body of GET /push/config.
type PushConfigResponse struct {
	PublicKey    string `json:"publicKey"`
	NudgeEnabled bool   `json:"nudgeEnabled"`
}
