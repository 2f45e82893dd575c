// Package mqtt defines the command protocol spoken with remote EVSEs over
// MQTT. The Paho based implementation lives in infra/mqtt.
package mqtt

import (
	"context"
	"time"

	"github.com/openchargingcloud/wwcp/core/ids"
)

// Action names a command sent to a remote EVSE.
type Action string

const (
	ActionReserve           Action = "reserve"
	ActionCancelReservation Action = "cancel_reservation"
	ActionRemoteStart       Action = "remote_start"
	ActionRemoteStop        Action = "remote_stop"
)

// Command is the payload published on "<prefix>/evse/<evse id>/command".
type Command struct {
	CommandID       string     `json:"command_id"`
	Action          Action     `json:"action"`
	EVSEID          string     `json:"evse_id"`
	ReservationID   string     `json:"reservation_id,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationSeconds int64      `json:"duration_s,omitempty"`
	AuthToken       string     `json:"auth_token,omitempty"`
	ProviderID      string     `json:"provider_id,omitempty"`
	Timestamp       int64      `json:"timestamp"`
}

// Ack is the payload an EVSE publishes on "<prefix>/evse/<evse id>/ack".
// Result carries the result code of the command, e.g. "Success" or "AlreadyInUse".
type Ack struct {
	CommandID string `json:"command_id"`
	Result    string `json:"result"`
	Message   string `json:"message,omitempty"`
}

// Client sends commands to EVSEs and waits for their acknowledgments.
type Client interface {
	// SendCommand publishes cmd for the given EVSE and returns the command
	// identifier used to track the acknowledgment.
	SendCommand(ctx context.Context, evse ids.EVSEID, cmd Command) (commandID string, err error)

	// WaitForAck waits for the acknowledgment of commandID until the timeout
	// expires or ctx is done.
	WaitForAck(ctx context.Context, commandID string, timeout time.Duration) (Ack, error)
}
