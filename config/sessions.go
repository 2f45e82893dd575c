package config

import (
	"fmt"

	"github.com/openchargingcloud/wwcp/infra/redisstore"
)

// SessionsConfig selects where reservations and charging sessions are kept.
type SessionsConfig struct {
	// Backend is "memory" or "redis".
	Backend string            `json:"backend"`
	Redis   redisstore.Config `json:"redis"`
}

func (c *SessionsConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

func (c SessionsConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("sessions: redis backend requires addr")
		}
	default:
		return fmt.Errorf("sessions: unknown backend %q", c.Backend)
	}
	return nil
}
