package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openchargingcloud/wwcp/core/ids"
	coremqtt "github.com/openchargingcloud/wwcp/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockClient answers commands locally. It is used in tests and by the
// simulated remote binding.
type MockClient struct {
	// Results maps an action to the ack result; missing actions ack "Success".
	Results map[coremqtt.Action]string
	// FailEVSEs makes SendCommand fail for the listed EVSEs.
	FailEVSEs map[string]bool
	// Silent suppresses acks so WaitForAck times out.
	Silent bool

	mu       sync.Mutex
	Commands []coremqtt.Command
	acks     map[string]coremqtt.Ack
}

// NewMockClient creates a MockClient acknowledging every command with "Success".
func NewMockClient() *MockClient {
	return &MockClient{
		Results:   make(map[coremqtt.Action]string),
		FailEVSEs: make(map[string]bool),
		acks:      make(map[string]coremqtt.Ack),
	}
}

// SendCommand records the command or returns an error if configured to fail.
func (m *MockClient) SendCommand(_ context.Context, evse ids.EVSEID, cmd coremqtt.Command) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEVSEs[evse.String()] {
		return "", fmt.Errorf("publish failed")
	}
	cmd.EVSEID = evse.String()
	if cmd.CommandID == "" {
		cmd.CommandID = fmt.Sprintf("cmd-%d", len(m.Commands)+1)
	}
	m.Commands = append(m.Commands, cmd)
	if !m.Silent {
		result, ok := m.Results[cmd.Action]
		if !ok {
			result = "Success"
		}
		m.acks[cmd.CommandID] = coremqtt.Ack{CommandID: cmd.CommandID, Result: result}
	}
	return cmd.CommandID, nil
}

// WaitForAck returns the stored ack immediately or times out when none exists.
func (m *MockClient) WaitForAck(ctx context.Context, commandID string, timeout time.Duration) (coremqtt.Ack, error) {
	m.mu.Lock()
	ack, ok := m.acks[commandID]
	delete(m.acks, commandID)
	m.mu.Unlock()
	if ok {
		return ack, nil
	}
	select {
	case <-ctx.Done():
		return coremqtt.Ack{}, ctx.Err()
	case <-time.After(timeout):
		return coremqtt.Ack{}, fmt.Errorf("%w: %w", coremqtt.ErrAckTimeout, context.DeadlineExceeded)
	}
}

// Sent returns a copy of the recorded commands.
func (m *MockClient) Sent() []coremqtt.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremqtt.Command(nil), m.Commands...)
}
