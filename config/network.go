package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// NetworkConfig describes the roaming network served by the process.
type NetworkConfig struct {
	ID                        string `json:"id"`
	Name                      string `json:"name"`
	MaxStatusHistory          int    `json:"max_status_history"`
	MaxAdminStatusHistory     int    `json:"max_admin_status_history"`
	DefaultReservationMinutes int    `json:"default_reservation_minutes"`
	// Infrastructure is the path of the YAML or JSON infrastructure document.
	Infrastructure string `json:"infrastructure"`
}

func (c *NetworkConfig) SetDefaults() {
	if c.ID == "" {
		c.ID = "default"
	}
	if c.MaxStatusHistory <= 0 {
		c.MaxStatusHistory = 50
	}
	if c.MaxAdminStatusHistory <= 0 {
		c.MaxAdminStatusHistory = 50
	}
	if c.DefaultReservationMinutes <= 0 {
		c.DefaultReservationMinutes = 15
	}
}

func (c NetworkConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("network: id is required")
	}
	return nil
}

// Options converts the section to network construction options.
func (c NetworkConfig) Options() []charging.Option {
	return []charging.Option{
		charging.WithMaxStatusHistory(c.MaxStatusHistory),
		charging.WithMaxAdminStatusHistory(c.MaxAdminStatusHistory),
		charging.WithDefaultReservationDuration(time.Duration(c.DefaultReservationMinutes) * time.Minute),
	}
}

// LoadInfrastructure reads an infrastructure document. The format follows the
// file extension.
func LoadInfrastructure(path string) (charging.Infrastructure, error) {
	var doc charging.Infrastructure
	parser, err := parserFor(path)
	if err != nil {
		return doc, err
	}
	k := koanf.New("\x00")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return doc, fmt.Errorf("load infrastructure %s: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return doc, fmt.Errorf("decode infrastructure %s: %w", path, err)
	}
	return doc, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}
