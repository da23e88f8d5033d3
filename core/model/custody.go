package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelink/medfleet/core/geo"
)

// VerificationMethod identifies how the recipient proved their identity.
type VerificationMethod int

const (
	VerifyCode VerificationMethod = iota
	VerifySignature
	VerifyBiometric
	VerifyPhoto
)

// String returns a human-readable representation of the verification method.
func (m VerificationMethod) String() string {
	switch m {
	case VerifyCode:
		return "code"
	case VerifySignature:
		return "signature"
	case VerifyBiometric:
		return "biometric"
	case VerifyPhoto:
		return "photo"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the method as its string form.
func (m VerificationMethod) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON decodes the method from its string form.
func (m *VerificationMethod) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case "code":
		*m = VerifyCode
	case "signature":
		*m = VerifySignature
	case "biometric":
		*m = VerifyBiometric
	case "photo":
		*m = VerifyPhoto
	default:
		return fmt.Errorf("unknown verification method %q", raw)
	}
	return nil
}

// CargoCondition is the assessment performed at handover.
type CargoCondition struct {
	PackagingIntact  bool    `json:"packaging_intact"`
	TemperatureC     float64 `json:"temperature_c"`
	TemperatureOK    bool    `json:"temperature_ok"`
	QuantityComplete bool    `json:"quantity_complete"`
	Notes            string  `json:"notes,omitempty"`
}

// OK reports whether every condition check passed.
func (c CargoCondition) OK() bool {
	return c.PackagingIntact && c.TemperatureOK && c.QuantityComplete
}

// ProofOfDelivery is the attestation sealed by the custody ledger. Once
// sealed it is never amended; corrections are new linked incident records.
type ProofOfDelivery struct {
	DeliveryID  string             `json:"delivery_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Method      VerificationMethod `json:"method"`
	RecipientID string             `json:"recipient_id"`
	Location    geo.Point          `json:"location"`
	Condition   CargoCondition     `json:"condition"`
	// Certificate is the hash-chained digital certificate assigned at
	// sealing time.
	Certificate string `json:"certificate,omitempty"`
}
