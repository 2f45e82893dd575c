package charging

import (
	"sync"

	"github.com/openchargingcloud/wwcp/core/status"
)

// StatusReport counts the current statuses of the children of an entity.
type StatusReport struct {
	Total  int                   `json:"total"`
	Counts map[status.Status]int `json:"counts"`
}

// NewStatusReport builds a report from a list of statuses.
func NewStatusReport(sts []status.Status) StatusReport {
	r := StatusReport{Total: len(sts), Counts: make(map[status.Status]int)}
	for _, s := range sts {
		r.Counts[s]++
	}
	return r
}

// Count returns the number of children with status s.
func (r StatusReport) Count(s status.Status) int { return r.Counts[s] }

// StatusAggregator derives the status of a parent from its children.
type StatusAggregator func(StatusReport) status.Status

// DefaultAggregator prefers the most useful state for a driver: anything
// available makes the parent available.
func DefaultAggregator(r StatusReport) status.Status {
	switch {
	case r.Total == 0:
		return status.Unknown
	case r.Count(status.Available) > 0:
		return status.Available
	case r.Count(status.Charging) > 0:
		return status.Charging
	case r.Count(status.Reserved) > 0:
		return status.Reserved
	case r.Count(status.OutOfService) == r.Total:
		return status.OutOfService
	case r.Count(status.Faulted) > 0:
		return status.Faulted
	case r.Count(status.Offline) > 0:
		return status.Offline
	default:
		return status.Unknown
	}
}

// aggregator holds the optional aggregation delegate of a parent entity.
type aggregator struct {
	aggMu sync.RWMutex
	fn    StatusAggregator
}

// SetStatusAggregator replaces the aggregation delegate. nil disables aggregation.
func (a *aggregator) SetStatusAggregator(fn StatusAggregator) {
	a.aggMu.Lock()
	a.fn = fn
	a.aggMu.Unlock()
}

func (a *aggregator) statusAggregator() StatusAggregator {
	a.aggMu.RLock()
	defer a.aggMu.RUnlock()
	return a.fn
}

// aggregate runs fn over statuses. ok is false when aggregation is disabled.
func (a *aggregator) aggregate(statuses []status.Status) (st status.Status, ok bool) {
	fn := a.statusAggregator()
	if fn == nil {
		return status.Unknown, false
	}
	return fn(NewStatusReport(statuses)), true
}
