package charging

import (
	"fmt"
	"sort"
	"strings"
)

// I18NString maps language codes to text.
type I18NString map[string]string

// NewI18N creates an I18NString with a single entry.
func NewI18N(lang, text string) I18NString { return I18NString{lang: text} }

// Get returns the text for lang, falling back to "en" and then to any entry.
func (s I18NString) Get(lang string) string {
	if v, ok := s[lang]; ok {
		return v
	}
	if v, ok := s["en"]; ok {
		return v
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return s[keys[0]]
}

func (s I18NString) IsEmpty() bool { return len(s) == 0 }

func (s I18NString) clone() I18NString {
	if s == nil {
		return nil
	}
	out := make(I18NString, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Address is a postal address.
type Address struct {
	Street      string `json:"street,omitempty" validate:"max=128"`
	HouseNumber string `json:"houseNumber,omitempty" validate:"max=16"`
	FloorLevel  string `json:"floorLevel,omitempty" validate:"max=16"`
	PostalCode  string `json:"postalCode,omitempty" validate:"max=16"`
	City        string `json:"city,omitempty" validate:"max=64"`
	Country     string `json:"country" validate:"required,iso3166_1_alpha2|iso3166_1_alpha3"`
	Comment     string `json:"comment,omitempty"`
}

func (a Address) String() string {
	parts := []string{strings.TrimSpace(a.Street + " " + a.HouseNumber), strings.TrimSpace(a.PostalCode + " " + a.City), a.Country}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// GeoCoordinate is a WGS84 position.
type GeoCoordinate struct {
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lng" validate:"gte=-180,lte=180"`
}

func (g GeoCoordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", g.Latitude, g.Longitude)
}

// OpeningTimes describes when a location can be used.
type OpeningTimes struct {
	Open24x7 bool   `json:"open24x7"`
	Text     string `json:"text,omitempty"`
}

// EnergyMix describes the origin of the delivered energy.
type EnergyMix struct {
	IsGreenEnergy bool               `json:"isGreenEnergy"`
	Sources       map[string]float64 `json:"sources,omitempty" validate:"dive,keys,required,endkeys,gte=0,lte=100"`
	SupplierName  string             `json:"supplierName,omitempty"`
	ProductName   string             `json:"productName,omitempty"`
}

func (m EnergyMix) clone() EnergyMix {
	m.Sources = cloneMap(m.Sources)
	return m
}

// Brand is a brand name shown to the driver.
type Brand struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Logo string `json:"logo,omitempty" validate:"omitempty,url"`
}

// PlugType is the connector standard of a socket outlet.
type PlugType string

const (
	PlugType2        PlugType = "Type2"
	PlugCCSCombo2    PlugType = "CCSCombo2"
	PlugCHAdeMO      PlugType = "CHAdeMO"
	PlugSchuko       PlugType = "Schuko"
	PlugTeslaConnect PlugType = "TeslaConnector"
)

// SocketOutlet is one physical connector of an EVSE.
type SocketOutlet struct {
	Plug          PlugType `json:"plug" validate:"required"`
	CableAttached bool     `json:"cableAttached,omitempty"`
	CableLengthM  float64  `json:"cableLength,omitempty" validate:"gte=0"`
}

// ChargingMode lists the supported charging protocols of an EVSE.
type ChargingMode string

const (
	ModeAC       ChargingMode = "AC"
	ModeDC       ChargingMode = "DC"
	ModeISO15118 ChargingMode = "ISO15118"
)
