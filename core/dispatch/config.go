package dispatch

import "fmt"

// Config holds the scheduling tunables. Defaults follow the operational
// policy; everything is overridable from the configuration file.
type Config struct {
	// RangeSafetyMargin is the fraction of extra range a vehicle must hold
	// beyond the round trip (0.20 = 20%).
	RangeSafetyMargin float64 `json:"range_safety_margin"`
	// AttemptTimeoutSeconds bounds one scheduling attempt; on expiry any
	// held reservation is released and a retryable failure returned.
	AttemptTimeoutSeconds int `json:"attempt_timeout_seconds"`
	// AckTimeoutSeconds bounds the wait for a vehicle launch ack.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
	// MaxRetries bounds internal retries over retryable failures.
	MaxRetries int `json:"max_retries"`
	// QueueCapacity bounds the pending request queue.
	QueueCapacity int `json:"queue_capacity"`

	Cost CostConfig `json:"cost"`

	Emergency EmergencyConfig `json:"emergency"`
}

// CostConfig parameterises the emitted cost estimate. Settlement is out of
// scope; these feed the estimate record only.
type CostConfig struct {
	BaseFee           float64 `json:"base_fee"`
	PerKmFee          float64 `json:"per_km_fee"`
	PriorityFactor    float64 `json:"priority_factor"`
	TempControlledFee float64 `json:"temp_controlled_fee"`
	Currency          string  `json:"currency"`
}

// EmergencyConfig parameterises the escalation lane.
type EmergencyConfig struct {
	// OverrideRoles lists requester roles allowed to override a borderline
	// weather verdict. The override and its justification are recorded.
	OverrideRoles []string `json:"override_roles"`
	// GoldenHourMinutes is the default arrival deadline applied to
	// life-critical requests without an explicit one.
	GoldenHourMinutes int `json:"golden_hour_minutes"`
	// NotifyEndpoints lists emergency-service endpoints notified in
	// parallel with dispatch.
	NotifyEndpoints []string `json:"notify_endpoints"`
	// ExemptionTag is attached to emergency requests for airspace
	// clearance matching.
	ExemptionTag string `json:"exemption_tag"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.RangeSafetyMargin == 0 {
		c.RangeSafetyMargin = 0.20
	}
	if c.AttemptTimeoutSeconds == 0 {
		c.AttemptTimeoutSeconds = 30
	}
	if c.AckTimeoutSeconds == 0 {
		c.AckTimeoutSeconds = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 256
	}
	if c.Cost.BaseFee == 0 {
		c.Cost.BaseFee = 12
	}
	if c.Cost.PerKmFee == 0 {
		c.Cost.PerKmFee = 1.8
	}
	if c.Cost.PriorityFactor == 0 {
		c.Cost.PriorityFactor = 0.5
	}
	if c.Cost.TempControlledFee == 0 {
		c.Cost.TempControlledFee = 6
	}
	if c.Cost.Currency == "" {
		c.Cost.Currency = "EUR"
	}
	if c.Emergency.GoldenHourMinutes == 0 {
		c.Emergency.GoldenHourMinutes = 60
	}
	if c.Emergency.ExemptionTag == "" {
		c.Emergency.ExemptionTag = "emergency-medical"
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RangeSafetyMargin < 0 || c.RangeSafetyMargin > 1 {
		return fmt.Errorf("range_safety_margin must be in [0,1]")
	}
	if c.AttemptTimeoutSeconds <= 0 {
		return fmt.Errorf("attempt_timeout_seconds must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}
