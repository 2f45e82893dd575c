// Package app wires the roaming network with its stores, exporters and API.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openchargingcloud/wwcp/api"
	"github.com/openchargingcloud/wwcp/config"
	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/journal"
	coremetrics "github.com/openchargingcloud/wwcp/core/metrics"
	coremon "github.com/openchargingcloud/wwcp/core/monitoring"
	"github.com/openchargingcloud/wwcp/infra/logger"
	"github.com/openchargingcloud/wwcp/infra/metrics"
	"github.com/openchargingcloud/wwcp/infra/monitoring"
	"github.com/openchargingcloud/wwcp/infra/mqtt"
	"github.com/openchargingcloud/wwcp/infra/push"
	"github.com/openchargingcloud/wwcp/infra/redisstore"
)

// Service owns the network and everything attached to it.
type Service struct {
	Network *charging.Network
	API     *api.Server

	cfg     *config.Config
	log     logger.Logger
	sink    coremetrics.MetricsSink
	journal journal.Store
	redis   *redisstore.Store
	mqtt    *mqtt.PahoClient
	status  *mqtt.StatusPublisher
	pusher  *push.Pusher

	closeOnce sync.Once
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	s := &Service{cfg: cfg, log: logger.New("service")}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.journal, err = journal.Open(ctx, cfg.Journal); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	opts := append(cfg.Network.Options(), charging.WithLogger(logger.New("network")))
	if cfg.Sessions.Backend == "redis" {
		if s.redis, err = redisstore.Dial(ctx, cfg.Sessions.Redis); err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		opts = append(opts, charging.WithReservationStore(s.redis), charging.WithSessionStore(s.redis.Sessions()))
	}

	var resolver charging.RemoteResolver
	if cfg.MQTT.Enabled() {
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		resolver = mqtt.Resolver(mqtt.NewRemoteEVSE(s.mqtt, cfg.MQTT.AckTimeout))
		s.status = mqtt.NewStatusPublisher(s.mqtt, s.mqtt.Prefix())
	}

	if s.Network, err = buildNetwork(ctx, cfg.Network, resolver, opts); err != nil {
		return nil, err
	}
	if s.mqtt != nil {
		s.mqtt.OnStatusReport(s.applyStatusReport)
	}
	if cfg.Push.Enabled() {
		s.pusher = push.New(cfg.Push, s.Network, logger.New("push"))
	}
	apiOpts := []api.Option{api.WithLogger(logger.New("api")), api.WithWebsocketBuffer(cfg.API.WebsocketBuffer)}
	if s.journal != nil {
		apiOpts = append(apiOpts, api.WithJournal(s.journal))
	}
	s.API = api.NewServer(s.Network, apiOpts...)
	return s, nil
}

func buildNetwork(ctx context.Context, cfg config.NetworkConfig, resolver charging.RemoteResolver, opts []charging.Option) (*charging.Network, error) {
	if cfg.Infrastructure == "" {
		n := charging.NewNetwork(cfg.ID, opts...)
		if cfg.Name != "" {
			n.SetName(ctx, charging.NewI18N("en", cfg.Name))
		}
		return n, nil
	}
	doc, err := config.LoadInfrastructure(cfg.Infrastructure)
	if err != nil {
		return nil, err
	}
	if cfg.Name != "" && doc.Name.IsEmpty() {
		doc.Name = charging.NewI18N("en", cfg.Name)
	}
	n, err := charging.LoadNetwork(ctx, cfg.ID, doc, resolver, opts...)
	if err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}
	return n, nil
}

// applyStatusReport copies a status reported by a physical EVSE to the model.
func (s *Service) applyStatusReport(id ids.EVSEID, r mqtt.StatusReport) {
	e, ok := s.Network.EVSE(id)
	if !ok {
		s.log.Warnf("status report for unknown EVSE %s", id)
		return
	}
	e.SetStatus(context.Background(), r.Status, r.Timestamp)
}

// Run starts exporters and the API and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.StartEventCollector(ctx, s.Network, s.sink, s.cfg.Metrics.CapacityInterval)
	var journalDone <-chan struct{}
	if s.journal != nil {
		journalDone = journal.Record(ctx, s.Network, s.journal, logger.New("journal"))
	}
	if s.status != nil {
		coremon.Go(func() { s.status.Run(ctx, s.Network) })
	}
	if s.pusher != nil {
		coremon.Go(func() { s.pusher.Run(ctx) })
	}
	if addr := metrics.PromAddr(s.cfg.Metrics.PrometheusPort); addr != "" {
		coremon.Go(func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}

	err := s.API.Serve(ctx, s.cfg.API.Address, s.cfg.API.ShutdownTimeout)
	cancel()
	if journalDone != nil {
		<-journalDone
	}
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.mqtt != nil {
			s.mqtt.Disconnect()
		}
		if s.Network != nil {
			s.Network.Close()
		}
		if s.journal != nil {
			errs = append(errs, s.journal.Close())
		}
		if s.redis != nil {
			errs = append(errs, s.redis.Close())
		}
		if c, ok := s.sink.(interface{ Close() }); ok {
			c.Close()
		}
		coremon.Flush(2 * time.Second)
	})
	return errors.Join(errs...)
}
