// Package command defines the channel used to send launch and abort orders
// to vehicles and await their acknowledgments.
package command

import (
	"errors"
	"time"

	"github.com/carelink/medfleet/core/model"
)

// ErrAckTimeout is returned when no acknowledgment arrives before the
// timeout.
var ErrAckTimeout = errors.New("timeout waiting for vehicle ack")

// LaunchOrder instructs a vehicle to execute a delivery.
type LaunchOrder struct {
	DeliveryID string         `json:"delivery_id"`
	Route      model.Route    `json:"route"`
	Priority   model.Priority `json:"priority"`
}

// AbortOrder instructs an in-transit vehicle to execute its emergency-return
// protocol.
type AbortOrder struct {
	DeliveryID string `json:"delivery_id"`
	Protocol   string `json:"protocol"`
	Reason     string `json:"reason"`
}

// Publisher sends orders to vehicles and tracks acknowledgments.
type Publisher interface {
	// SendLaunch sends a launch order to the vehicle and returns the
	// command identifier used to track the acknowledgment.
	SendLaunch(vehicleID string, order LaunchOrder) (commandID string, err error)

	// SendAbort sends an abort order to the vehicle.
	SendAbort(vehicleID string, order AbortOrder) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}
