package charging

import (
	"encoding/json"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

// ContextBase prefixes the @context of every JSON projection.
const ContextBase = "https://open.charging.cloud/contexts/wwcp+json/"

// JSONOptions control the JSON projection of an entity.
type JSONOptions struct {
	// Embedded omits the parent id when the entity is nested in its parent.
	Embedded bool
	// ExpandChildren includes the full children instead of their ids.
	ExpandChildren bool
}

// DefaultJSONOptions are used by MarshalJSON.
var DefaultJSONOptions = JSONOptions{ExpandChildren: true}

type (
	adminStatusJSON = status.Timestamped[status.AdminStatus]
	statusJSON      = status.Timestamped[status.Status]
)

type EVSEJSON struct {
	ID            ids.EVSEID      `json:"@id"`
	Context       string          `json:"@context"`
	StationID     string          `json:"chargingStationId,omitempty"`
	Name          I18NString      `json:"name,omitempty"`
	Description   I18NString      `json:"description,omitempty"`
	AdminStatus   adminStatusJSON `json:"adminStatus"`
	Status        statusJSON      `json:"status"`
	MaxPowerKW    float64         `json:"maxPower,omitempty"`
	MaxCurrentA   float64         `json:"maxCurrent,omitempty"`
	MaxVoltageV   float64         `json:"maxVoltage,omitempty"`
	Sockets       []SocketOutlet  `json:"socketOutlets,omitempty"`
	ChargingModes []ChargingMode  `json:"chargingModes,omitempty"`
	CustomData    map[string]any  `json:"customData,omitempty"`
}

type StationJSON struct {
	ID           ids.StationID     `json:"@id"`
	Context      string            `json:"@context"`
	PoolID       string            `json:"chargingPoolId,omitempty"`
	Name         I18NString        `json:"name,omitempty"`
	Description  I18NString        `json:"description,omitempty"`
	AdminStatus  adminStatusJSON   `json:"adminStatus"`
	Status       statusJSON        `json:"status"`
	Address      *Address          `json:"address,omitempty"`
	GeoLocation  *GeoCoordinate    `json:"geoLocation,omitempty"`
	OpeningTimes *OpeningTimes     `json:"openingTimes,omitempty"`
	EnergyMix    *EnergyMix        `json:"energyMix,omitempty"`
	Brands       []Brand           `json:"brands,omitempty"`
	ExternalIDs  map[string]string `json:"externalIds,omitempty"`
	EVSEs        []EVSEJSON        `json:"evses,omitempty"`
	EVSEIDs      []ids.EVSEID      `json:"evseIds,omitempty"`
	CustomData   map[string]any    `json:"customData,omitempty"`
}

type PoolJSON struct {
	ID           ids.PoolID        `json:"@id"`
	Context      string            `json:"@context"`
	OperatorID   string            `json:"operatorId,omitempty"`
	Name         I18NString        `json:"name,omitempty"`
	Description  I18NString        `json:"description,omitempty"`
	AdminStatus  adminStatusJSON   `json:"adminStatus"`
	Status       statusJSON        `json:"status"`
	Address      *Address          `json:"address,omitempty"`
	GeoLocation  *GeoCoordinate    `json:"geoLocation,omitempty"`
	OpeningTimes *OpeningTimes     `json:"openingTimes,omitempty"`
	EnergyMix    *EnergyMix        `json:"energyMix,omitempty"`
	Brands       []Brand           `json:"brands,omitempty"`
	ExternalIDs  map[string]string `json:"externalIds,omitempty"`
	Stations     []StationJSON     `json:"chargingStations,omitempty"`
	StationIDs   []ids.StationID   `json:"chargingStationIds,omitempty"`
	CustomData   map[string]any    `json:"customData,omitempty"`
}

type OperatorJSON struct {
	ID           ids.OperatorID  `json:"@id"`
	Context      string          `json:"@context"`
	NetworkID    string          `json:"roamingNetworkId,omitempty"`
	Name         I18NString      `json:"name,omitempty"`
	Description  I18NString      `json:"description,omitempty"`
	AdminStatus  adminStatusJSON `json:"adminStatus"`
	Status       statusJSON      `json:"status"`
	Homepage     string          `json:"homepage,omitempty"`
	HotlinePhone string          `json:"hotlinePhone,omitempty"`
	Pools        []PoolJSON      `json:"chargingPools,omitempty"`
	PoolIDs      []ids.PoolID    `json:"chargingPoolIds,omitempty"`
	CustomData   map[string]any  `json:"customData,omitempty"`
}

type NetworkJSON struct {
	ID          string           `json:"@id"`
	Context     string           `json:"@context"`
	Name        I18NString       `json:"name,omitempty"`
	Description I18NString       `json:"description,omitempty"`
	AdminStatus adminStatusJSON  `json:"adminStatus"`
	Status      statusJSON       `json:"status"`
	Operators   []OperatorJSON   `json:"chargingStationOperators,omitempty"`
	OperatorIDs []ids.OperatorID `json:"chargingStationOperatorIds,omitempty"`
	CustomData  map[string]any   `json:"customData,omitempty"`
}

func (b *base) statuses() (adminStatusJSON, statusJSON) {
	a, _ := b.adminStatus.Current()
	s, _ := b.status.Current()
	return a, s
}

func ptr[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

// copyOf returns a shallow copy of *v, or nil.
func copyOf[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneMix(m EnergyMix, ok bool) *EnergyMix {
	if !ok {
		return nil
	}
	c := m.clone()
	return &c
}

func nonEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

func (e *EVSE) ToJSON(opts JSONOptions) EVSEJSON {
	a, s := e.statuses()
	out := EVSEJSON{
		ID:            e.id,
		Context:       ContextBase + string(KindEVSE),
		Name:          e.Name(),
		Description:   e.Description(),
		AdminStatus:   a,
		Status:        s,
		MaxPowerKW:    e.MaxPowerKW(),
		MaxCurrentA:   e.MaxCurrentA(),
		MaxVoltageV:   e.MaxVoltageV(),
		Sockets:       nonEmpty(e.Sockets()),
		ChargingModes: nonEmpty(e.ChargingModes()),
		CustomData:    e.customDataCopy(),
	}
	if st := e.Station(); st != nil && !opts.Embedded {
		out.StationID = st.ID().String()
	}
	return out
}

// ToJSON projects the station. Embedded stations only report their own
// attributes; standalone ones include the values inherited from the pool.
func (st *Station) ToJSON(opts JSONOptions) StationJSON {
	a, s := st.statuses()
	out := StationJSON{
		ID:          st.id,
		Context:     ContextBase + string(KindStation),
		Name:        st.Name(),
		Description: st.Description(),
		AdminStatus: a,
		Status:      s,
		ExternalIDs: st.ExternalIDs(),
		CustomData:  st.customDataCopy(),
	}
	if opts.Embedded {
		st.mu.RLock()
		out.Address = copyOf(st.loc.address)
		out.GeoLocation = copyOf(st.loc.geo)
		out.OpeningTimes = copyOf(st.loc.openingTimes)
		if st.loc.energyMix != nil {
			m := st.loc.energyMix.clone()
			out.EnergyMix = &m
		}
		out.Brands = nonEmpty(append([]Brand(nil), st.loc.brands...))
		st.mu.RUnlock()
	} else {
		out.Address = ptr[Address](st.Address())
		out.GeoLocation = ptr[GeoCoordinate](st.GeoLocation())
		out.OpeningTimes = ptr[OpeningTimes](st.OpeningTimes())
		out.EnergyMix = cloneMix(st.EnergyMix())
		out.Brands = nonEmpty(st.Brands())
		if p := st.Pool(); p != nil {
			out.PoolID = p.ID().String()
		}
	}
	if opts.ExpandChildren {
		child := JSONOptions{Embedded: true, ExpandChildren: true}
		for _, e := range st.EVSEs() {
			out.EVSEs = append(out.EVSEs, e.ToJSON(child))
		}
	} else {
		out.EVSEIDs = nonEmpty(st.EVSEIDs())
	}
	return out
}

func (p *Pool) ToJSON(opts JSONOptions) PoolJSON {
	a, s := p.statuses()
	out := PoolJSON{
		ID:           p.id,
		Context:      ContextBase + string(KindPool),
		Name:         p.Name(),
		Description:  p.Description(),
		AdminStatus:  a,
		Status:       s,
		Address:      ptr[Address](p.Address()),
		GeoLocation:  ptr[GeoCoordinate](p.GeoLocation()),
		OpeningTimes: ptr[OpeningTimes](p.OpeningTimes()),
		EnergyMix:    cloneMix(p.EnergyMix()),
		Brands:       nonEmpty(p.Brands()),
		ExternalIDs:  p.ExternalIDs(),
		CustomData:   p.customDataCopy(),
	}
	if o := p.Operator(); o != nil && !opts.Embedded {
		out.OperatorID = o.ID().String()
	}
	if opts.ExpandChildren {
		child := JSONOptions{Embedded: true, ExpandChildren: true}
		for _, st := range p.Stations() {
			out.Stations = append(out.Stations, st.ToJSON(child))
		}
	} else {
		out.StationIDs = nonEmpty(p.StationIDs())
	}
	return out
}

func (o *Operator) ToJSON(opts JSONOptions) OperatorJSON {
	a, s := o.statuses()
	out := OperatorJSON{
		ID:           o.id,
		Context:      ContextBase + string(KindOperator),
		Name:         o.Name(),
		Description:  o.Description(),
		AdminStatus:  a,
		Status:       s,
		Homepage:     o.Homepage(),
		HotlinePhone: o.HotlinePhone(),
		CustomData:   o.customDataCopy(),
	}
	if n := o.Network(); n != nil && !opts.Embedded {
		out.NetworkID = n.ID()
	}
	if opts.ExpandChildren {
		child := JSONOptions{Embedded: true, ExpandChildren: true}
		for _, p := range o.Pools() {
			out.Pools = append(out.Pools, p.ToJSON(child))
		}
	} else {
		out.PoolIDs = nonEmpty(o.PoolIDs())
	}
	return out
}

func (n *Network) ToJSON(opts JSONOptions) NetworkJSON {
	a, s := n.statuses()
	out := NetworkJSON{
		ID:          n.id,
		Context:     ContextBase + string(KindNetwork),
		Name:        n.Name(),
		Description: n.Description(),
		AdminStatus: a,
		Status:      s,
		CustomData:  n.customDataCopy(),
	}
	if opts.ExpandChildren {
		child := JSONOptions{Embedded: true, ExpandChildren: true}
		for _, o := range n.Operators() {
			out.Operators = append(out.Operators, o.ToJSON(child))
		}
	} else {
		out.OperatorIDs = nonEmpty(n.OperatorIDs())
	}
	return out
}

func (e *EVSE) MarshalJSON() ([]byte, error)     { return json.Marshal(e.ToJSON(DefaultJSONOptions)) }
func (st *Station) MarshalJSON() ([]byte, error) { return json.Marshal(st.ToJSON(DefaultJSONOptions)) }
func (p *Pool) MarshalJSON() ([]byte, error)     { return json.Marshal(p.ToJSON(DefaultJSONOptions)) }
func (o *Operator) MarshalJSON() ([]byte, error) { return json.Marshal(o.ToJSON(DefaultJSONOptions)) }
func (n *Network) MarshalJSON() ([]byte, error)  { return json.Marshal(n.ToJSON(DefaultJSONOptions)) }
