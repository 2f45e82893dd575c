package charging

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openchargingcloud/wwcp/core/ids"
)

// DefaultReservationDuration applies when a request does not name one.
const DefaultReservationDuration = 15 * time.Minute

// Location addresses a request at some level of the hierarchy. The most
// specific non-zero identifier wins.
type Location struct {
	Operator ids.OperatorID `json:"operatorId,omitempty"`
	Pool     ids.PoolID     `json:"chargingPoolId,omitempty"`
	Station  ids.StationID  `json:"chargingStationId,omitempty"`
	EVSE     ids.EVSEID     `json:"evseId,omitempty"`
}

// OperatorID returns the operator addressed by the location.
func (l Location) OperatorID() ids.OperatorID {
	switch {
	case !l.EVSE.IsZero():
		return l.EVSE.OperatorID()
	case !l.Station.IsZero():
		return l.Station.OperatorID()
	case !l.Pool.IsZero():
		return l.Pool.OperatorID()
	default:
		return l.Operator
	}
}

// Covers reports whether the reserved EVSE lies within the location.
func (l Location) Covers(r Reservation) bool {
	switch {
	case !l.EVSE.IsZero():
		return l.EVSE == r.EVSE
	case !l.Station.IsZero():
		return l.Station == r.Station
	case !l.Pool.IsZero():
		return l.Pool == r.Pool
	default:
		return l.Operator == r.Operator
	}
}

func (l Location) IsZero() bool {
	return l.Operator.IsZero() && l.Pool.IsZero() && l.Station.IsZero() && l.EVSE.IsZero()
}

func (l Location) String() string {
	switch {
	case !l.EVSE.IsZero():
		return l.EVSE.String()
	case !l.Station.IsZero():
		return l.Station.String()
	case !l.Pool.IsZero():
		return l.Pool.String()
	default:
		return l.Operator.String()
	}
}

// Reservation is a granted reservation of one EVSE.
type Reservation struct {
	ID              string         `json:"@id"`
	EVSE            ids.EVSEID     `json:"evseId"`
	Station         ids.StationID  `json:"chargingStationId"`
	Pool            ids.PoolID     `json:"chargingPoolId"`
	Operator        ids.OperatorID `json:"operatorId"`
	StartTime       time.Time      `json:"startTime"`
	Duration        time.Duration  `json:"duration"`
	ProviderID      string         `json:"providerId,omitempty"`
	AuthToken       string         `json:"authToken,omitempty"`
	ChargingProduct string         `json:"chargingProduct,omitempty"`
	Created         time.Time      `json:"created"`
}

// EndTime is StartTime plus Duration.
func (r Reservation) EndTime() time.Time { return r.StartTime.Add(r.Duration) }

// Expired reports whether the reservation ended before now.
func (r Reservation) Expired(now time.Time) bool { return now.After(r.EndTime()) }

// ReserveRequest asks for a reservation at a location.
type ReserveRequest struct {
	ReservationID   string        `json:"reservationId,omitempty"`
	Location        Location      `json:"location"`
	StartTime       time.Time     `json:"startTime,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	ProviderID      string        `json:"providerId,omitempty"`
	AuthToken       string        `json:"authToken,omitempty"`
	ChargingProduct string        `json:"chargingProduct,omitempty"`
}

// ReservationResultCode is the outcome of a reservation request.
type ReservationResultCode string

const (
	ReservationSuccess            ReservationResultCode = "Success"
	ReservationUnknownLocation    ReservationResultCode = "UnknownLocation"
	ReservationOutOfService       ReservationResultCode = "OutOfService"
	ReservationAlreadyReserved    ReservationResultCode = "AlreadyReserved"
	ReservationAlreadyInUse       ReservationResultCode = "AlreadyInUse"
	ReservationNoEVSEsAvailable   ReservationResultCode = "NoEVSEsAvailable"
	ReservationInvalidCredentials ReservationResultCode = "InvalidCredentials"
	ReservationTimeout            ReservationResultCode = "Timeout"
	ReservationError              ReservationResultCode = "Error"
)

// ReservationResult is returned by every level's Reserve.
type ReservationResult struct {
	Code        ReservationResultCode `json:"result"`
	Reservation *Reservation          `json:"reservation,omitempty"`
	Description string                `json:"description,omitempty"`
	Runtime     time.Duration         `json:"runtime"`
}

func (r ReservationResult) Success() bool { return r.Code == ReservationSuccess }

// CancelReservationRequest cancels a reservation. EVSE is filled in by the
// network from its reservation store.
type CancelReservationRequest struct {
	ReservationID string     `json:"reservationId"`
	EVSE          ids.EVSEID `json:"evseId,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

type CancelReservationResultCode string

const (
	CancelSuccess            CancelReservationResultCode = "Success"
	CancelUnknownReservation CancelReservationResultCode = "UnknownReservation"
	CancelOffline            CancelReservationResultCode = "Offline"
	CancelTimeout            CancelReservationResultCode = "Timeout"
	CancelError              CancelReservationResultCode = "Error"
)

type CancelReservationResult struct {
	Code        CancelReservationResultCode `json:"result"`
	Reservation *Reservation                `json:"reservation,omitempty"`
	Description string                      `json:"description,omitempty"`
	Runtime     time.Duration               `json:"runtime"`
}

func (r CancelReservationResult) Success() bool { return r.Code == CancelSuccess }

// ReservationCanceled is fired after a reservation was canceled.
type ReservationCanceled struct {
	Reservation Reservation `json:"reservation"`
	Reason      string      `json:"reason,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// newReservation completes a request into a reservation for evse.
func newReservation(req ReserveRequest, e *EVSE, now time.Time, defDuration time.Duration) Reservation {
	r := Reservation{
		ID:              req.ReservationID,
		EVSE:            e.ID(),
		StartTime:       req.StartTime,
		Duration:        req.Duration,
		ProviderID:      req.ProviderID,
		AuthToken:       req.AuthToken,
		ChargingProduct: req.ChargingProduct,
		Created:         now,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartTime.IsZero() {
		r.StartTime = now
	}
	if r.Duration <= 0 {
		r.Duration = defDuration
	}
	if st := e.Station(); st != nil {
		r.Station = st.ID()
		if p := st.Pool(); p != nil {
			r.Pool = p.ID()
		}
	}
	r.Operator = e.ID().OperatorID()
	return r
}

// ErrReservationNotFound is returned by reservation stores.
var ErrReservationNotFound = errors.New("reservation not found")

// ReservationStore keeps the reservations granted within a roaming network.
type ReservationStore interface {
	Add(ctx context.Context, r Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]Reservation, error)
}

// MemoryReservationStore is the in-process ReservationStore.
type MemoryReservationStore struct {
	mu   sync.RWMutex
	data map[string]Reservation
}

func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{data: map[string]Reservation{}}
}

func (s *MemoryReservationStore) Add(_ context.Context, r Reservation) error {
	s.mu.Lock()
	s.data[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryReservationStore) Get(_ context.Context, id string) (Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return r, nil
}

func (s *MemoryReservationStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrReservationNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *MemoryReservationStore) List(_ context.Context) ([]Reservation, error) {
	s.mu.RLock()
	out := make([]Reservation, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}
