package config

import "time"

// APIConfig configures the HTTP API.
type APIConfig struct {
	Address string `json:"address"`
	// WebsocketBuffer is the number of change events queued per websocket client.
	WebsocketBuffer int           `json:"websocket_buffer"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

func (c *APIConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.WebsocketBuffer <= 0 {
		c.WebsocketBuffer = 64
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}
