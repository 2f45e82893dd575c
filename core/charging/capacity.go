package charging

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

// CapacityReport summarises the maximum power of a set of EVSEs.
type CapacityReport struct {
	EVSEs       int     `json:"evses"`
	TotalKW     float64 `json:"totalKW"`
	AvailableKW float64 `json:"availableKW"`
	MeanKW      float64 `json:"meanKW"`
	StdDevKW    float64 `json:"stdDevKW"`
	MinKW       float64 `json:"minKW"`
	MaxKW       float64 `json:"maxKW"`
}

// Capacity computes the report. AvailableKW only counts EVSEs that are
// currently Available.
func Capacity(evses []*EVSE) CapacityReport {
	r := CapacityReport{EVSEs: len(evses)}
	if len(evses) == 0 {
		return r
	}
	power := make([]float64, len(evses))
	for i, e := range evses {
		power[i] = e.MaxPowerKW()
		if e.Status() == status.Available {
			r.AvailableKW += power[i]
		}
	}
	r.TotalKW = floats.Sum(power)
	r.MinKW = floats.Min(power)
	r.MaxKW = floats.Max(power)
	if len(power) == 1 {
		r.MeanKW = power[0]
		return r
	}
	r.MeanKW, r.StdDevKW = stat.MeanStdDev(power, nil)
	return r
}

func (st *Station) Capacity() CapacityReport { return Capacity(st.EVSEs()) }

func (p *Pool) Capacity() CapacityReport { return Capacity(p.EVSEs()) }

// CapacityReport returns the capacity of a pool of the network.
func (n *Network) CapacityReport(id ids.PoolID) (CapacityReport, bool) {
	p, ok := n.Pool(id)
	if !ok {
		return CapacityReport{}, false
	}
	return p.Capacity(), true
}
