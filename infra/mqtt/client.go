package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/monitoring"
	coremqtt "github.com/openchargingcloud/wwcp/core/mqtt"
	"github.com/openchargingcloud/wwcp/core/status"
	"github.com/openchargingcloud/wwcp/infra/logger"
)

// DefaultTopicPrefix is used when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "wwcp"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	AckTimeout  time.Duration   `json:"ack_timeout"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

func (c Config) prefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(c.TopicPrefix, "/")
}

// pahoClient is the subset of paho.Client used here.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// StatusReport is published by EVSEs on "<prefix>/evse/<evse id>/report".
type StatusReport struct {
	Status    status.Status `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// StatusReportHandler receives decoded status reports.
type StatusReportHandler func(evse ids.EVSEID, r StatusReport)

// PahoClient implements coremqtt.Client using Eclipse Paho.
type PahoClient struct {
	cli    pahoClient
	prefix string
	qos    map[string]byte

	mu         sync.Mutex
	ackChans   map[string]chan coremqtt.Ack
	reportFn   StatusReportHandler
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ack and
// status report topics of all EVSEs.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		prefix:     cfg.prefix(),
		ackChans:   make(map[string]chan coremqtt.Ack),
		logger:     log,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.subscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

func (p *PahoClient) subscribe(c pahoClient) {
	subs := map[string]paho.MessageHandler{
		p.AckTopic():    p.onAck,
		p.ReportTopic(): p.onReport,
	}
	for topic, h := range subs {
		if token := c.Subscribe(topic, p.qosFor("ack"), h); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// CommandTopic is the topic commands for evse are published on.
func (p *PahoClient) CommandTopic(evse ids.EVSEID) string {
	return fmt.Sprintf("%s/evse/%s/command", p.prefix, evse)
}

// AckTopic is the wildcard topic acknowledgments arrive on.
func (p *PahoClient) AckTopic() string { return p.prefix + "/evse/+/ack" }

// ReportTopic is the wildcard topic EVSE status reports arrive on.
func (p *PahoClient) ReportTopic() string { return p.prefix + "/evse/+/report" }

// Prefix returns the configured topic prefix.
func (p *PahoClient) Prefix() string { return p.prefix }

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var ack coremqtt.Ack
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[ack.CommandID]
	if ok {
		select {
		case ch <- ack:
		default:
		}
		p.logger.Debugf("received ack %s: %s", ack.CommandID, ack.Result)
	}
	p.mu.Unlock()
}

// OnStatusReport installs the handler for EVSE status reports.
func (p *PahoClient) OnStatusReport(fn StatusReportHandler) {
	p.mu.Lock()
	p.reportFn = fn
	p.mu.Unlock()
}

func (p *PahoClient) onReport(_ paho.Client, msg paho.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) < 3 {
		return
	}
	evse, err := ids.ParseEVSEID(parts[len(parts)-2])
	if err != nil {
		p.logger.Warnf("status report on %s: %v", msg.Topic(), err)
		return
	}
	var r StatusReport
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		p.logger.Errorf("failed to decode status report of %s: %v", evse, err)
		return
	}
	p.mu.Lock()
	fn := p.reportFn
	p.mu.Unlock()
	if fn != nil {
		fn(evse, r)
	}
}

// SendCommand publishes a command to the EVSE command topic and returns the
// command identifier used for acknowledgment tracking.
func (p *PahoClient) SendCommand(ctx context.Context, evse ids.EVSEID, cmd coremqtt.Command) (string, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.NewString()
	}
	cmd.EVSEID = evse.String()
	cmd.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}

	// register before publishing so a fast ack is not lost
	p.mu.Lock()
	p.ackChans[cmd.CommandID] = make(chan coremqtt.Ack, 1)
	p.mu.Unlock()

	topic := p.CommandTopic(evse)
	if err := p.publish(ctx, topic, p.qosFor("command"), false, payload); err != nil {
		p.forget(cmd.CommandID)
		monitoring.CaptureException(err, map[string]string{"module": "mqtt", "evse_id": evse.String(), "action": string(cmd.Action)})
		return "", err
	}
	p.logger.Infof("sent %s command %s to %s", cmd.Action, cmd.CommandID, topic)
	return cmd.CommandID, nil
}

// Publish sends payload with retries and exponential backoff.
func (p *PahoClient) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	return p.publish(ctx, topic, p.qosFor("status"), retained, payload)
}

func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return publishErr
}

func (p *PahoClient) forget(commandID string) {
	p.mu.Lock()
	delete(p.ackChans, commandID)
	p.mu.Unlock()
}

// WaitForAck blocks until an ack for the given command ID is received, the
// timeout expires or ctx is done.
func (p *PahoClient) WaitForAck(ctx context.Context, commandID string, timeout time.Duration) (coremqtt.Ack, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return coremqtt.Ack{}, fmt.Errorf("%s: %w", commandID, coremqtt.ErrUnknownCommand)
	}
	defer p.forget(commandID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return coremqtt.Ack{}, ctx.Err()
	case <-timer.C:
		return coremqtt.Ack{}, fmt.Errorf("%w: %w", coremqtt.ErrAckTimeout, context.DeadlineExceeded)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
