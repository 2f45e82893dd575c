package metrics

import (
	"context"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
	coremetrics "github.com/openchargingcloud/wwcp/core/metrics"
	"github.com/openchargingcloud/wwcp/infra/logger"
)

const collectorBuffer = 64

// StartEventCollector subscribes to the network and records metrics for its
// changes, completed requests and charging sessions. When interval is
// positive the capacity of every pool is recorded periodically. It stops
// when the context is canceled.
func StartEventCollector(ctx context.Context, n *charging.Network, sink coremetrics.MetricsSink, interval time.Duration) {
	if n == nil || sink == nil {
		return
	}
	log := logger.New("metrics-collector")
	changes := n.Changes().Subscribe()
	requests := make(chan charging.RequestLog, collectorBuffer)
	sessions := make(chan coremetrics.SessionEvent, collectorBuffer)

	unsubscribe := []func(){
		n.OnRequestCompleted.Subscribe(func(_ context.Context, r charging.RequestLog) {
			select {
			case requests <- r:
			default:
				log.Warnf("metrics collector dropped request %s", r.RequestID)
			}
		}),
		n.OnNewChargingSession.Subscribe(func(_ context.Context, s charging.ChargingSession) {
			enqueueSession(sessions, coremetrics.SessionEvent{Session: s, Time: s.Start}, log)
		}),
		n.OnSessionEnded.Subscribe(func(_ context.Context, s charging.ChargingSession) {
			enqueueSession(sessions, coremetrics.SessionEvent{Session: s, Ended: true, Time: s.Stop}, log)
		}),
	}

	go func() {
		var tick <-chan time.Time
		if interval > 0 {
			t := time.NewTicker(interval)
			defer t.Stop()
			tick = t.C
		}
		defer func() {
			for _, u := range unsubscribe {
				u()
			}
			n.Changes().Unsubscribe(changes)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				if err := sink.RecordChange(ch); err != nil {
					log.Errorf("record change of %s: %v", ch.EntityID, err)
				}
			case r := <-requests:
				if rec, ok := sink.(coremetrics.RequestRecorder); ok {
					if err := rec.RecordRequest(r); err != nil {
						log.Errorf("record request %s: %v", r.RequestID, err)
					}
				}
			case ev := <-sessions:
				if rec, ok := sink.(coremetrics.SessionRecorder); ok {
					if err := rec.RecordSession(ev); err != nil {
						log.Errorf("record session %s: %v", ev.Session.ID, err)
					}
				}
			case now := <-tick:
				recordCapacity(n, sink, now, log)
			}
		}
	}()
}

func enqueueSession(ch chan<- coremetrics.SessionEvent, ev coremetrics.SessionEvent, log logger.Logger) {
	select {
	case ch <- ev:
	default:
		log.Warnf("metrics collector dropped session %s", ev.Session.ID)
	}
}

func recordCapacity(n *charging.Network, sink coremetrics.MetricsSink, now time.Time, log logger.Logger) {
	rec, ok := sink.(coremetrics.CapacityRecorder)
	if !ok {
		return
	}
	for _, p := range n.Pools() {
		ev := coremetrics.CapacityEvent{Pool: p.ID().String(), Report: p.Capacity(), Time: now}
		if err := rec.RecordCapacity(ev); err != nil {
			log.Errorf("record capacity of %s: %v", ev.Pool, err)
		}
	}
}
