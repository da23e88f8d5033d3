package dispatch

import "errors"

// Terminal rejection reasons, surfaced to the requester with a suggested
// alternative.
var (
	ErrNoAvailableVehicle     = errors.New("no available vehicle")
	ErrPayloadExceedsCapacity = errors.New("payload exceeds capacity")
	ErrWeatherUnsuitable      = errors.New("weather unsuitable")
	ErrAirspaceRestricted     = errors.New("airspace restricted")
	ErrComplianceViolation    = errors.New("compliance violation")
)

// Retryable failures, handled internally against the next candidate or
// cycle and never surfaced as-is.
var (
	ErrReservationConflict = errors.New("reservation conflict")
	ErrDispatchTimeout     = errors.New("dispatch timeout")
)

// In-flight and arrival failures.
var (
	ErrInFlightAbort           = errors.New("in-flight abort")
	ErrProofVerificationFailed = errors.New("proof of delivery verification failed")
	ErrTemperatureExcursion    = errors.New("temperature excursion")
)

// Retryable reports whether the scheduler may retry the error internally.
func Retryable(err error) bool {
	return errors.Is(err, ErrReservationConflict) || errors.Is(err, ErrDispatchTimeout)
}

// Rejection is the structured outcome returned to the requester when no
// dispatch could be committed.
type Rejection struct {
	ReasonCode  string `json:"reason_code"`
	Message     string `json:"message"`
	Alternative string `json:"alternative,omitempty"`
}

// Error implements the error interface.
func (r *Rejection) Error() string { return r.ReasonCode + ": " + r.Message }

// NewRejection maps a terminal scheduling error to its wire shape, including
// the suggested next step.
func NewRejection(err error) *Rejection {
	switch {
	case errors.Is(err, ErrNoAvailableVehicle):
		return &Rejection{
			ReasonCode:  "NoAvailableVehicle",
			Message:     "no vehicle can currently serve this request",
			Alternative: "retry later or split the cargo across smaller loads",
		}
	case errors.Is(err, ErrPayloadExceedsCapacity):
		return &Rejection{
			ReasonCode:  "PayloadExceedsCapacity",
			Message:     "cargo exceeds the capacity of every registered vehicle",
			Alternative: "split the cargo or arrange a courier",
		}
	case errors.Is(err, ErrWeatherUnsuitable):
		return &Rejection{
			ReasonCode:  "WeatherUnsuitable",
			Message:     "current weather does not permit safe flight",
			Alternative: "use ground vehicle",
		}
	case errors.Is(err, ErrAirspaceRestricted):
		return &Rejection{
			ReasonCode:  "AirspaceRestricted",
			Message:     "planned route crosses a prohibited zone with no exemption",
			Alternative: "use ground vehicle or reroute via another hub",
		}
	case errors.Is(err, ErrComplianceViolation):
		return &Rejection{
			ReasonCode:  "ComplianceViolation",
			Message:     "airspace clearance was not granted",
			Alternative: "use ground vehicle",
		}
	case errors.Is(err, ErrDispatchTimeout):
		return &Rejection{
			ReasonCode:  "DispatchTimeout",
			Message:     "scheduling did not complete in time",
			Alternative: "retry the request",
		}
	default:
		return &Rejection{ReasonCode: "Internal", Message: err.Error()}
	}
}
