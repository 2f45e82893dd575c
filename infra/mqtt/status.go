package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/infra/logger"
)

// Publisher publishes raw payloads. PahoClient implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, retained bool, payload []byte) error
}

// StatusMessage is the retained payload of a status topic.
type StatusMessage struct {
	Kind      charging.Kind `json:"kind"`
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Value     any           `json:"value"`
	Previous  any           `json:"previous,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// StatusPublisher mirrors status and admin status changes of a network to
// retained topics "<prefix>/<kind>/<id>/status" and ".../adminstatus".
type StatusPublisher struct {
	pub    Publisher
	prefix string
	log    logger.Logger
}

// NewStatusPublisher creates a publisher writing below prefix.
func NewStatusPublisher(pub Publisher, prefix string) *StatusPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &StatusPublisher{pub: pub, prefix: prefix, log: logger.New("mqtt_status")}
}

// Topic returns the topic a change is published on, or "" for data changes.
func (s *StatusPublisher) Topic(ch charging.Change) string {
	var leaf string
	switch ch.Type {
	case charging.ChangeStatus:
		leaf = "status"
	case charging.ChangeAdminStatus:
		leaf = "adminstatus"
	default:
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.prefix, kindSegment(ch.Kind), ch.EntityID, leaf)
}

func kindSegment(k charging.Kind) string {
	switch k {
	case charging.KindNetwork:
		return "network"
	case charging.KindOperator:
		return "operator"
	case charging.KindPool:
		return "pool"
	case charging.KindStation:
		return "station"
	default:
		return "evse"
	}
}

// Handle publishes one change.
func (s *StatusPublisher) Handle(ctx context.Context, ch charging.Change) error {
	topic := s.Topic(ch)
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(StatusMessage{
		Kind:      ch.Kind,
		ID:        ch.EntityID,
		Type:      string(ch.Type),
		Value:     ch.New,
		Previous:  ch.Old,
		Timestamp: ch.Timestamp,
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, topic, true, payload)
}

// Run publishes the network's changes until ctx is done.
func (s *StatusPublisher) Run(ctx context.Context, n *charging.Network) {
	sub := n.Changes().Subscribe()
	defer n.Changes().Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-sub:
			if !ok {
				return
			}
			if err := s.Handle(ctx, ch); err != nil {
				s.log.Errorf("publish %s of %s: %v", ch.Type, ch.EntityID, err)
			}
		}
	}
}
