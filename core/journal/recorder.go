package journal

import (
	"context"
	"fmt"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/logger"
	"github.com/openchargingcloud/wwcp/core/monitoring"
)

// Config selects and configures the journal backend.
type Config struct {
	// Backend is one of "jsonl", "sqlite", "postgres" or empty to disable the journal.
	Backend  string    `json:"backend"`
	Path     string    `json:"path"`
	DSN      string    `json:"dsn"`
	Rotation *Rotation `json:"rotation"`
}

// Validate checks the backend specific settings.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("journal: %s backend requires path", c.Backend)
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("journal: postgres backend requires dsn")
		}
	default:
		return fmt.Errorf("journal: unknown backend %q", c.Backend)
	}
	return nil
}

// Open creates the configured store. It returns nil when the journal is disabled.
func Open(ctx context.Context, c Config) (Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		s   Store
		err error
	)
	switch c.Backend {
	case "jsonl":
		s, err = NewJSONLStore(c.Path, c.Rotation)
	case "sqlite":
		s, err = NewSQLiteStore(c.Path)
	case "postgres":
		s, err = NewPostgresStore(ctx, c.DSN)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Record appends every change of the network to store until ctx is done.
// The returned channel is closed once the recorder stopped.
func Record(ctx context.Context, n *charging.Network, store Store, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	sub := n.Changes().Subscribe()
	go func() {
		defer close(done)
		defer n.Changes().Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-sub:
				if !ok {
					return
				}
				e, err := FromChange(ch)
				if err == nil {
					err = store.Append(ctx, e)
				}
				if err != nil {
					log.Errorw("journal append failed", map[string]any{"entity": ch.EntityID, "type": string(ch.Type), "error": err.Error()})
					monitoring.CaptureException(err, map[string]string{"module": "journal"})
				}
			}
		}
	}()
	return done
}
