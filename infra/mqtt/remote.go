package mqtt

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/ids"
	coremqtt "github.com/openchargingcloud/wwcp/core/mqtt"
)

// DefaultAckTimeout bounds the wait for a command acknowledgment.
const DefaultAckTimeout = 10 * time.Second

// RemoteName is the remote binding name used in infrastructure documents.
const RemoteName = "mqtt"

// RemoteEVSE forwards reservation and session commands to a physical EVSE
// over MQTT and maps the acknowledgment to a result code.
type RemoteEVSE struct {
	client  coremqtt.Client
	timeout time.Duration
}

// NewRemoteEVSE returns a RemoteEVSE using client. A non-positive timeout
// falls back to DefaultAckTimeout.
func NewRemoteEVSE(client coremqtt.Client, timeout time.Duration) *RemoteEVSE {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &RemoteEVSE{client: client, timeout: timeout}
}

// Resolver binds every EVSE whose document names the "mqtt" remote to one
// shared RemoteEVSE.
func Resolver(r *RemoteEVSE) charging.RemoteResolver {
	return func(name string, _ ids.EVSEID) (charging.RemoteEVSE, error) {
		if name != RemoteName {
			return nil, fmt.Errorf("unsupported remote %q", name)
		}
		return r, nil
	}
}

func (r *RemoteEVSE) exec(ctx context.Context, evse ids.EVSEID, cmd coremqtt.Command) (coremqtt.Ack, error) {
	id, err := r.client.SendCommand(ctx, evse, cmd)
	if err != nil {
		return coremqtt.Ack{}, err
	}
	timeout := r.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	return r.client.WaitForAck(ctx, id, timeout)
}

// resultCode returns the ack result when it is one of known, otherwise fallback.
func resultCode[C ~string](ack coremqtt.Ack, known []C, fallback C) C {
	if c := C(ack.Result); slices.Contains(known, c) {
		return c
	}
	return fallback
}

func (r *RemoteEVSE) Reserve(ctx context.Context, evse ids.EVSEID, res charging.Reservation) (charging.ReservationResultCode, error) {
	start := res.StartTime
	ack, err := r.exec(ctx, evse, coremqtt.Command{
		Action:          coremqtt.ActionReserve,
		ReservationID:   res.ID,
		StartTime:       &start,
		DurationSeconds: int64(res.Duration / time.Second),
		AuthToken:       res.AuthToken,
		ProviderID:      res.ProviderID,
	})
	if err != nil {
		return charging.ReservationError, err
	}
	return resultCode(ack, []charging.ReservationResultCode{
		charging.ReservationSuccess, charging.ReservationOutOfService, charging.ReservationAlreadyReserved,
		charging.ReservationAlreadyInUse, charging.ReservationInvalidCredentials,
	}, charging.ReservationError), nil
}

func (r *RemoteEVSE) CancelReservation(ctx context.Context, evse ids.EVSEID, reservationID string) (charging.CancelReservationResultCode, error) {
	ack, err := r.exec(ctx, evse, coremqtt.Command{Action: coremqtt.ActionCancelReservation, ReservationID: reservationID})
	if err != nil {
		return charging.CancelError, err
	}
	return resultCode(ack, []charging.CancelReservationResultCode{
		charging.CancelSuccess, charging.CancelUnknownReservation, charging.CancelOffline,
	}, charging.CancelError), nil
}

func (r *RemoteEVSE) RemoteStart(ctx context.Context, evse ids.EVSEID, s charging.ChargingSession) (charging.RemoteStartResultCode, error) {
	ack, err := r.exec(ctx, evse, coremqtt.Command{
		Action:        coremqtt.ActionRemoteStart,
		SessionID:     s.ID,
		ReservationID: s.ReservationID,
		AuthToken:     s.AuthToken,
		ProviderID:    s.ProviderID,
	})
	if err != nil {
		return charging.StartError, err
	}
	return resultCode(ack, []charging.RemoteStartResultCode{
		charging.StartSuccess, charging.StartOutOfService, charging.StartReserved,
		charging.StartAlreadyInUse, charging.StartOffline,
	}, charging.StartError), nil
}

func (r *RemoteEVSE) RemoteStop(ctx context.Context, evse ids.EVSEID, sessionID string) (charging.RemoteStopResultCode, error) {
	ack, err := r.exec(ctx, evse, coremqtt.Command{Action: coremqtt.ActionRemoteStop, SessionID: sessionID})
	if err != nil {
		return charging.StopError, err
	}
	return resultCode(ack, []charging.RemoteStopResultCode{
		charging.StopSuccess, charging.StopUnknownSession, charging.StopOutOfService, charging.StopOffline,
	}, charging.StopError), nil
}
