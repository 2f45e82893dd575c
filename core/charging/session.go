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

// ChargingSession is a charging process started remotely on an EVSE.
type ChargingSession struct {
	ID              string         `json:"@id"`
	EVSE            ids.EVSEID     `json:"evseId"`
	Station         ids.StationID  `json:"chargingStationId"`
	Pool            ids.PoolID     `json:"chargingPoolId"`
	Operator        ids.OperatorID `json:"operatorId"`
	ReservationID   string         `json:"reservationId,omitempty"`
	ProviderID      string         `json:"providerId,omitempty"`
	AuthToken       string         `json:"authToken,omitempty"`
	ChargingProduct string         `json:"chargingProduct,omitempty"`
	Start           time.Time      `json:"start"`
	Stop            time.Time      `json:"stop,omitempty"`
}

// Active reports whether the session has not been stopped yet.
func (s ChargingSession) Active() bool { return s.Stop.IsZero() }

// RemoteStartRequest asks to start charging at a location.
type RemoteStartRequest struct {
	SessionID       string   `json:"sessionId,omitempty"`
	ReservationID   string   `json:"reservationId,omitempty"`
	Location        Location `json:"location"`
	ProviderID      string   `json:"providerId,omitempty"`
	AuthToken       string   `json:"authToken,omitempty"`
	ChargingProduct string   `json:"chargingProduct,omitempty"`
}

type RemoteStartResultCode string

const (
	StartSuccess         RemoteStartResultCode = "Success"
	StartUnknownLocation RemoteStartResultCode = "UnknownLocation"
	StartOutOfService    RemoteStartResultCode = "OutOfService"
	StartReserved        RemoteStartResultCode = "Reserved"
	StartAlreadyInUse    RemoteStartResultCode = "AlreadyInUse"
	StartNoEVSEAvailable RemoteStartResultCode = "NoEVSEAvailable"
	StartOffline         RemoteStartResultCode = "Offline"
	StartTimeout         RemoteStartResultCode = "Timeout"
	StartError           RemoteStartResultCode = "Error"
)

type RemoteStartResult struct {
	Code        RemoteStartResultCode `json:"result"`
	Session     *ChargingSession      `json:"session,omitempty"`
	Description string                `json:"description,omitempty"`
	Runtime     time.Duration         `json:"runtime"`
}

func (r RemoteStartResult) Success() bool { return r.Code == StartSuccess }

// ReservationHandling tells RemoteStop what to do with the reservation the
// session was started on.
type ReservationHandling struct {
	KeepAlive bool          `json:"keepAlive"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// RemoteStopRequest stops a session. EVSE is filled in by the network from
// its session store.
type RemoteStopRequest struct {
	SessionID           string              `json:"sessionId"`
	EVSE                ids.EVSEID          `json:"evseId,omitempty"`
	ReservationHandling ReservationHandling `json:"reservationHandling"`
	ProviderID          string              `json:"providerId,omitempty"`
}

type RemoteStopResultCode string

const (
	StopSuccess        RemoteStopResultCode = "Success"
	StopUnknownSession RemoteStopResultCode = "UnknownSession"
	StopUnknownEVSE    RemoteStopResultCode = "UnknownEVSE"
	StopOutOfService   RemoteStopResultCode = "OutOfService"
	StopOffline        RemoteStopResultCode = "Offline"
	StopTimeout        RemoteStopResultCode = "Timeout"
	StopError          RemoteStopResultCode = "Error"
)

type RemoteStopResult struct {
	Code        RemoteStopResultCode `json:"result"`
	Session     *ChargingSession     `json:"session,omitempty"`
	Reservation *Reservation         `json:"reservation,omitempty"`
	Description string               `json:"description,omitempty"`
	Runtime     time.Duration        `json:"runtime"`
}

func (r RemoteStopResult) Success() bool { return r.Code == StopSuccess }

func newSession(req RemoteStartRequest, e *EVSE, now time.Time) ChargingSession {
	s := ChargingSession{
		ID:              req.SessionID,
		EVSE:            e.ID(),
		Operator:        e.ID().OperatorID(),
		ProviderID:      req.ProviderID,
		AuthToken:       req.AuthToken,
		ChargingProduct: req.ChargingProduct,
		Start:           now,
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if st := e.Station(); st != nil {
		s.Station = st.ID()
		if p := st.Pool(); p != nil {
			s.Pool = p.ID()
		}
	}
	return s
}

// ErrSessionNotFound is returned by session stores.
var ErrSessionNotFound = errors.New("charging session not found")

// SessionStore keeps the charging sessions of a roaming network.
type SessionStore interface {
	Save(ctx context.Context, s ChargingSession) error
	Get(ctx context.Context, id string) (ChargingSession, error)
	Active(ctx context.Context) ([]ChargingSession, error)
}

// MemorySessionStore is the in-process SessionStore.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]ChargingSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: map[string]ChargingSession{}}
}

func (s *MemorySessionStore) Save(_ context.Context, cs ChargingSession) error {
	s.mu.Lock()
	s.data[cs.ID] = cs
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (ChargingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.data[id]
	if !ok {
		return ChargingSession{}, ErrSessionNotFound
	}
	return cs, nil
}

func (s *MemorySessionStore) Active(_ context.Context) ([]ChargingSession, error) {
	s.mu.RLock()
	out := make([]ChargingSession, 0, len(s.data))
	for _, cs := range s.data {
		if cs.Active() {
			out = append(out, cs)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
