package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openchargingcloud/wwcp/core/journal"
	"github.com/openchargingcloud/wwcp/core/metrics"
	"github.com/openchargingcloud/wwcp/infra/mqtt"
	"github.com/openchargingcloud/wwcp/infra/push"
)

type Config struct {
	Network  NetworkConfig  `json:"network"`
	API      APIConfig      `json:"api"`
	Metrics  metrics.Config `json:"metrics"`
	MQTT     mqtt.Config    `json:"mqtt"`
	Journal  journal.Config `json:"journal"`
	Sessions SessionsConfig `json:"sessions"`
	Push     push.Config    `json:"push"`
	Sentry   SentryConfig   `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Network.SetDefaults()
	cfg.API.SetDefaults()
	cfg.Sessions.SetDefaults()
	cfg.Push.SetDefaults()
	cfg.Sentry.NetworkID = cfg.Network.ID
	if err := cfg.Network.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Journal.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sessions.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
