package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// ErrDispatcherClosed indicates the dispatcher is no longer accepting work.
var ErrDispatcherClosed = errors.New("dispatch: dispatcher closed")

// Handler processes one inbound message. *orchestrator.Engine satisfies it.
type Handler interface {
	Handle(ctx context.Context, in orchestrator.Inbound) (orchestrator.Outbound, error)
}

const (
	defaultLanes            = 4
	defaultReceiveWait      = 2  // seconds
	defaultReceiveMax       = 5  // messages
	maxReceiveWaitSeconds   = 20 // SQS limit
	maxReceiveBatchMessages = 10
	defaultJobTimeout       = 30 * time.Second
	laneBuffer              = 16
)

type config struct {
	lanes            int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
}

// Option configures the dispatcher.
type Option func(*config)

// WithLanes sets how many sessions may be processed in parallel.
func WithLanes(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.lanes = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for Receive calls.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(cfg *config) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many messages each poll should return.
func WithReceiveBatchSize(size int) Option {
	return func(cfg *config) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds the processing of a single job.
func WithJobTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// Dispatcher feeds queued jobs to the handler. A single poller routes each
// job to a lane chosen by hashing the session ID; a lane runs its jobs one
// at a time, so a session's messages never overlap or reorder while
// different sessions proceed in parallel.
type Dispatcher struct {
	handler Handler
	queue   Queue
	logger  *logging.Logger
	cfg     config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	lanes  []chan laneItem

	pending sync.Map // jobID -> chan result
}

type job struct {
	ID      string               `json:"id"`
	Inbound orchestrator.Inbound `json:"inbound"`
}

type laneItem struct {
	msg Message
	job job
}

type result struct {
	out orchestrator.Outbound
	err error
}

// New starts the poller and lane workers.
func New(handler Handler, queue Queue, logger *logging.Logger, opts ...Option) *Dispatcher {
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := config{
		lanes:            defaultLanes,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler: handler,
		queue:   queue,
		logger:  logger.WithComponent("dispatch"),
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		lanes:   make([]chan laneItem, cfg.lanes),
	}
	for i := range d.lanes {
		d.lanes[i] = make(chan laneItem, laneBuffer)
		d.wg.Add(1)
		go d.runLane(i)
	}
	d.wg.Add(1)
	go d.poll()
	return d
}

// Dispatch enqueues the message and blocks until it is processed or ctx is
// done.
func (d *Dispatcher) Dispatch(ctx context.Context, in orchestrator.Inbound) (orchestrator.Outbound, error) {
	if d.ctx.Err() != nil {
		return orchestrator.Outbound{}, ErrDispatcherClosed
	}

	j := job{ID: uuid.NewString(), Inbound: in}
	body, err := json.Marshal(j)
	if err != nil {
		return orchestrator.Outbound{}, fmt.Errorf("dispatch: failed to encode job: %w", err)
	}

	resultCh := make(chan result, 1)
	d.pending.Store(j.ID, resultCh)
	defer d.pending.Delete(j.ID)

	if err := d.queue.Send(ctx, in.SessionID, string(body)); err != nil {
		return orchestrator.Outbound{}, fmt.Errorf("dispatch: failed to enqueue job: %w", err)
	}

	select {
	case <-ctx.Done():
		return orchestrator.Outbound{}, ctx.Err()
	case res := <-resultCh:
		return res.out, res.err
	}
}

// Shutdown stops the workers and fails any callers still waiting.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	d.pending.Range(func(key, value any) bool {
		if ch, ok := value.(chan result); ok {
			select {
			case ch <- result{err: ErrDispatcherClosed}:
			default:
			}
		}
		d.pending.Delete(key)
		return true
	})
	return nil
}

func (d *Dispatcher) poll() {
	defer d.wg.Done()
	backoff := time.Second

	for {
		if d.ctx.Err() != nil {
			return
		}
		messages, err := d.queue.Receive(d.ctx, d.cfg.receiveBatchSize, d.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive jobs", "error", err)
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			var j job
			if err := json.Unmarshal([]byte(msg.Body), &j); err != nil {
				d.logger.Error("failed to decode job", "error", err, "message_id", msg.ID)
				d.delete(msg)
				continue
			}
			select {
			case d.lanes[laneFor(j.Inbound.SessionID, len(d.lanes))] <- laneItem{msg: msg, job: j}:
			case <-d.ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) runLane(i int) {
	defer d.wg.Done()
	d.logger.Debug("dispatch lane started", "lane", i)
	for {
		// queued jobs are left for redelivery once shutdown starts
		if d.ctx.Err() != nil {
			return
		}
		select {
		case <-d.ctx.Done():
			return
		case item := <-d.lanes[i]:
			d.process(item)
		}
	}
}

func (d *Dispatcher) process(item laneItem) {
	// in-flight jobs finish even when shutdown starts
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), d.cfg.jobTimeout)
	defer cancel()

	out, err := d.handler.Handle(ctx, item.job.Inbound)
	d.delete(item.msg)
	d.deliver(item.job.ID, out, err)
}

func (d *Dispatcher) delete(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		d.logger.Error("failed to delete job", "error", err, "message_id", msg.ID)
	}
}

func (d *Dispatcher) deliver(jobID string, out orchestrator.Outbound, err error) {
	value, ok := d.pending.Load(jobID)
	if !ok {
		d.logger.Debug("no waiting caller for job", "job_id", jobID)
		return
	}
	ch, ok := value.(chan result)
	if !ok {
		d.logger.Error("dispatch pending map corrupted", "job_id", jobID)
		d.pending.Delete(jobID)
		return
	}
	select {
	case ch <- result{out: out, err: err}:
	default:
	}
}

func laneFor(sessionID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(n))
}
