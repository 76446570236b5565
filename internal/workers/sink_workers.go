// Package workers runs the pool that drains sink forwarding jobs off the request path.
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/internal/events"
	"github.com/axellelanca/campaignshortener/internal/metrics"
)

// Job is one batch of events for one client.
type Job struct {
	ClientID string
	Events   []events.Event
}

// SinkPool forwards jobs to the sink with a fixed number of goroutines. The queue is bounded:
// when it is full, new jobs are dropped with a warning.
type SinkPool struct {
	sink    events.Sink
	jobs    chan Job
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// StartSinkWorkers launches workerCount goroutines reading from a queue of bufferSize jobs.
func StartSinkWorkers(workerCount, bufferSize int, sink events.Sink, timeout time.Duration, logger *zap.Logger) *SinkPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &SinkPool{
		sink:    sink,
		jobs:    make(chan Job, bufferSize),
		timeout: timeout,
		logger:  logger,
	}
	logger.Info("Starting sink workers", zap.Int("count", workerCount), zap.Bool("sink_enabled", sink.Enabled()))
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Forward queues events without blocking. It reports whether the job was accepted.
func (p *SinkPool) Forward(clientID string, evs ...events.Event) bool {
	if !p.sink.Enabled() || len(evs) == 0 {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- Job{ClientID: clientID, Events: evs}:
		return true
	default:
		metrics.SinkForwardsTotal.WithLabelValues("dropped").Inc()
		p.logger.Warn("Sink queue full, dropping events", zap.String("client_id", clientID), zap.Int("events", len(evs)))
		return false
	}
}

// ForwardClick is the bus handler that mirrors every recorded click to the sink.
func (p *SinkPool) ForwardClick(_ context.Context, click events.ClickRecorded) error {
	clientID := click.SessionID
	if clientID == "" {
		clientID = click.IPAddress
	}
	p.Forward(clientID, events.ClickEvent(click))
	return nil
}

// Stop closes the queue and waits for queued jobs to drain.
func (p *SinkPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Sink workers stopped")
}

// worker exits when the queue is closed and empty.
func (p *SinkPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.sink.Send(ctx, job.ClientID, job.Events...)
		cancel()
		if err != nil {
			metrics.SinkForwardsTotal.WithLabelValues("failed").Inc()
			p.logger.Warn("Failed to forward events to sink",
				zap.Int("worker", id),
				zap.String("client_id", job.ClientID),
				zap.Error(err))
			continue
		}
		metrics.SinkForwardsTotal.WithLabelValues("sent").Inc()
	}
}
