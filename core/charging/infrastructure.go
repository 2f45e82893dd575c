package charging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

// Infrastructure is the document describing a network's static
// infrastructure. Missing pool and station ids are derived from their
// content, missing EVSE ids are numbered per station.
type Infrastructure struct {
	Name      I18NString    `json:"name,omitempty"`
	Operators []OperatorDoc `json:"operators" jsonschema:"required"`
}

type OperatorDoc struct {
	ID           string     `json:"id" jsonschema:"required,example=DE*GEF"`
	Name         I18NString `json:"name,omitempty"`
	Description  I18NString `json:"description,omitempty"`
	AdminStatus  string     `json:"admin_status,omitempty" jsonschema:"enum=Operational,enum=InternalUse,enum=OutOfService,enum=Planned,enum=InDeployment"`
	Homepage     string     `json:"homepage,omitempty"`
	HotlinePhone string     `json:"hotline_phone,omitempty"`
	Pools        []PoolDoc  `json:"pools,omitempty"`
}

type PoolDoc struct {
	ID           string            `json:"id,omitempty"`
	Name         I18NString        `json:"name,omitempty"`
	Description  I18NString        `json:"description,omitempty"`
	AdminStatus  string            `json:"admin_status,omitempty"`
	Address      *Address          `json:"address,omitempty"`
	GeoLocation  *GeoCoordinate    `json:"geo_location,omitempty"`
	OpeningTimes *OpeningTimes     `json:"opening_times,omitempty"`
	EnergyMix    *EnergyMix        `json:"energy_mix,omitempty"`
	Brands       []Brand           `json:"brands,omitempty"`
	ExternalIDs  map[string]string `json:"external_ids,omitempty"`
	Stations     []StationDoc      `json:"stations,omitempty"`
}

type StationDoc struct {
	ID           string            `json:"id,omitempty"`
	Name         I18NString        `json:"name,omitempty"`
	Description  I18NString        `json:"description,omitempty"`
	AdminStatus  string            `json:"admin_status,omitempty"`
	Address      *Address          `json:"address,omitempty"`
	GeoLocation  *GeoCoordinate    `json:"geo_location,omitempty"`
	OpeningTimes *OpeningTimes     `json:"opening_times,omitempty"`
	EnergyMix    *EnergyMix        `json:"energy_mix,omitempty"`
	Brands       []Brand           `json:"brands,omitempty"`
	ExternalIDs  map[string]string `json:"external_ids,omitempty"`
	EVSEs        []EVSEDoc         `json:"evses,omitempty"`
}

type EVSEDoc struct {
	ID            string         `json:"id,omitempty"`
	Name          I18NString     `json:"name,omitempty"`
	AdminStatus   string         `json:"admin_status,omitempty"`
	Status        string         `json:"status,omitempty"`
	MaxPowerKW    float64        `json:"max_power_kw,omitempty"`
	MaxCurrentA   float64        `json:"max_current_a,omitempty"`
	MaxVoltageV   float64        `json:"max_voltage_v,omitempty"`
	Sockets       []SocketOutlet `json:"sockets,omitempty"`
	ChargingModes []ChargingMode `json:"charging_modes,omitempty"`
	// Remote names the transport controlling the physical EVSE, e.g. "mqtt".
	Remote string `json:"remote,omitempty" jsonschema:"enum=mqtt"`
}

// RemoteResolver returns the hardware proxy for an EVSE whose document names
// a remote transport.
type RemoteResolver func(name string, evse ids.EVSEID) (RemoteEVSE, error)

// LoadNetwork creates a network and builds doc into it.
func LoadNetwork(ctx context.Context, id string, doc Infrastructure, remotes RemoteResolver, opts ...Option) (*Network, error) {
	n := NewNetwork(id, opts...)
	if !doc.Name.IsEmpty() {
		n.SetName(ctx, doc.Name)
	}
	if err := Build(ctx, n, doc, remotes); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// Build adds the operators of doc to n. Entities already present are an error.
func Build(ctx context.Context, n *Network, doc Infrastructure, remotes RemoteResolver) error {
	for i, od := range doc.Operators {
		if err := buildOperator(ctx, n, od, remotes); err != nil {
			return fmt.Errorf("operators[%d]: %w", i, err)
		}
	}
	return nil
}

func parseAdmin(s string) (status.AdminStatus, error) {
	if s == "" {
		return status.AdminOperational, nil
	}
	return status.ParseAdminStatus(s)
}

func buildOperator(ctx context.Context, n *Network, od OperatorDoc, remotes RemoteResolver) error {
	id, err := ids.ParseOperatorID(od.ID)
	if err != nil {
		return err
	}
	admin, err := parseAdmin(od.AdminStatus)
	if err != nil {
		return err
	}
	o, err := n.CreateOperator(ctx, id, WithOperatorName(od.Name), WithOperatorAdminStatus(admin))
	if err != nil {
		return err
	}
	o.SetDescription(ctx, od.Description)
	if _, err := o.SetHomepage(ctx, od.Homepage); err != nil {
		return err
	}
	if _, err := o.SetHotlinePhone(ctx, od.HotlinePhone); err != nil {
		return err
	}
	for i, pd := range od.Pools {
		if err := buildPool(ctx, o, pd, remotes); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
	}
	return nil
}

func buildPool(ctx context.Context, o *Operator, pd PoolDoc, remotes RemoteResolver) error {
	var id ids.PoolID
	if pd.ID != "" {
		var err error
		if id, err = ids.ParsePoolID(pd.ID); err != nil {
			return err
		}
	} else {
		addr := ""
		if pd.Address != nil {
			addr = pd.Address.String()
		}
		id = ids.GeneratePoolID(o.ID(), pd.Name.Get("en"), addr)
	}
	admin, err := parseAdmin(pd.AdminStatus)
	if err != nil {
		return err
	}
	p, err := o.CreatePool(ctx, id, WithPoolName(pd.Name), WithPoolAdminStatus(admin))
	if err != nil {
		return err
	}
	p.SetDescription(ctx, pd.Description)
	if err := applyLocation(ctx, pd.Address, pd.GeoLocation, pd.OpeningTimes, pd.EnergyMix, pd.Brands, locationSetters{
		address: p.SetAddress, geo: p.SetGeoLocation, openingTimes: p.SetOpeningTimes, energyMix: p.SetEnergyMix, brands: p.SetBrands,
	}); err != nil {
		return err
	}
	for k, v := range pd.ExternalIDs {
		p.SetExternalID(ctx, k, v)
	}
	for i, sd := range pd.Stations {
		if err := buildStation(ctx, p, i, sd, remotes); err != nil {
			return fmt.Errorf("stations[%d]: %w", i, err)
		}
	}
	return nil
}

func buildStation(ctx context.Context, p *Pool, idx int, sd StationDoc, remotes RemoteResolver) error {
	var id ids.StationID
	if sd.ID != "" {
		var err error
		if id, err = ids.ParseStationID(sd.ID); err != nil {
			return err
		}
	} else {
		id = ids.GenerateStationID(p.ID().OperatorID(), p.ID().String(), sd.Name.Get("en"), strconv.Itoa(idx))
	}
	admin, err := parseAdmin(sd.AdminStatus)
	if err != nil {
		return err
	}
	st, err := p.CreateStation(ctx, id, WithStationName(sd.Name), WithStationAdminStatus(admin))
	if err != nil {
		return err
	}
	st.SetDescription(ctx, sd.Description)
	if err := applyLocation(ctx, sd.Address, sd.GeoLocation, sd.OpeningTimes, sd.EnergyMix, sd.Brands, locationSetters{
		address: st.SetAddress, geo: st.SetGeoLocation, openingTimes: st.SetOpeningTimes, energyMix: st.SetEnergyMix, brands: st.SetBrands,
	}); err != nil {
		return err
	}
	for k, v := range sd.ExternalIDs {
		st.SetExternalID(ctx, k, v)
	}
	for i, ed := range sd.EVSEs {
		if err := buildEVSE(ctx, st, i, ed, remotes); err != nil {
			return fmt.Errorf("evses[%d]: %w", i, err)
		}
	}
	return nil
}

func buildEVSE(ctx context.Context, st *Station, idx int, ed EVSEDoc, remotes RemoteResolver) error {
	var (
		id  ids.EVSEID
		err error
	)
	if ed.ID != "" {
		id, err = ids.ParseEVSEID(ed.ID)
	} else {
		id, err = ids.NewEVSEID(st.ID(), idx+1)
	}
	if err != nil {
		return err
	}
	admin, err := parseAdmin(ed.AdminStatus)
	if err != nil {
		return err
	}
	opts := []EVSEOption{WithEVSEAdminStatus(admin), WithEVSEPower(ed.MaxPowerKW, ed.MaxCurrentA, ed.MaxVoltageV)}
	if ed.Status != "" {
		s, err := status.ParseStatus(ed.Status)
		if err != nil {
			return err
		}
		opts = append(opts, WithEVSEStatus(s))
	}
	if ed.Remote != "" {
		if remotes == nil {
			return fmt.Errorf("evse %s: no resolver for remote %q", id, ed.Remote)
		}
		r, err := remotes(ed.Remote, id)
		if err != nil {
			return fmt.Errorf("evse %s: %w", id, err)
		}
		opts = append(opts, WithRemote(r))
	}
	for _, so := range ed.Sockets {
		if err := Validate(so); err != nil {
			return err
		}
	}
	opts = append(opts, WithSockets(ed.Sockets...), func(e *EVSE) {
		e.name = ed.Name.clone()
		e.modes = append([]ChargingMode(nil), ed.ChargingModes...)
	})
	_, err = st.CreateEVSE(ctx, id, opts...)
	return err
}

type locationSetters struct {
	address      func(context.Context, Address) (bool, error)
	geo          func(context.Context, GeoCoordinate) (bool, error)
	openingTimes func(context.Context, OpeningTimes) (bool, error)
	energyMix    func(context.Context, EnergyMix) (bool, error)
	brands       func(context.Context, []Brand) (bool, error)
}

func applyLocation(ctx context.Context, a *Address, g *GeoCoordinate, o *OpeningTimes, m *EnergyMix, b []Brand, set locationSetters) error {
	if a != nil {
		if _, err := set.address(ctx, *a); err != nil {
			return err
		}
	}
	if g != nil {
		if _, err := set.geo(ctx, *g); err != nil {
			return err
		}
	}
	if o != nil {
		if _, err := set.openingTimes(ctx, *o); err != nil {
			return err
		}
	}
	if m != nil {
		if _, err := set.energyMix(ctx, *m); err != nil {
			return err
		}
	}
	if len(b) > 0 {
		if _, err := set.brands(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
