package models

// FeatureFlag is one flag as exposed by the admin API.
type FeatureFlag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt *Timestamp  `json:"updatedAt,omitempty"`
}

// FeatureFlagsResponse is the body of GET /v1/admin/feature-flags.
type FeatureFlagsResponse struct {
	Items []FeatureFlag `json:"items"`
}

// FeatureFlagUpdate sets one flag.
type FeatureFlagUpdate struct {
	Key   string      `json:"key" validate:"required,max=64"`
	Value interface{} `json:"value"`
}

// FeatureFlagsUpdateRequest is the body of PUT /v1/admin/feature-flags.
type FeatureFlagsUpdateRequest struct {
	Updates []FeatureFlagUpdate `json:"updates" validate:"required,min=1,dive"`
	Reason  string              `json:"reason,omitempty" validate:"omitempty,max=256"`
}
