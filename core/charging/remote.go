package charging

import (
	"context"
	"errors"

	"github.com/openchargingcloud/wwcp/core/ids"
)

// RemoteEVSE is the proxy to the physical EVSE. When an EVSE has one attached
// the commands are executed remotely first and the local state only follows
// a successful result.
type RemoteEVSE interface {
	Reserve(ctx context.Context, evse ids.EVSEID, r Reservation) (ReservationResultCode, error)
	CancelReservation(ctx context.Context, evse ids.EVSEID, reservationID string) (CancelReservationResultCode, error)
	RemoteStart(ctx context.Context, evse ids.EVSEID, s ChargingSession) (RemoteStartResultCode, error)
	RemoteStop(ctx context.Context, evse ids.EVSEID, sessionID string) (RemoteStopResultCode, error)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
