// Package agent applies content-change events to the entity index manager
// asynchronously. Producers never block: events land on an unbounded FIFO
// queue drained by one consumer, which hands each mutation to a worker
// chosen by the document it touches. Mutations of one document therefore
// apply in submission order while unrelated documents proceed in parallel.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
)

// Indexer is the mutation surface of the entity index manager.
type Indexer interface {
	IndexContent(ctx context.Context, entity, typ string, obj *content.Object) (bool, error)
	UpdateContent(ctx context.Context, entity, typ string, obj *content.Object) (bool, error)
	DeleteContent(ctx context.Context, entity, typ string, obj *content.Object) (bool, error)
}

type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Config struct {
	Workers      int
	WorkerBuffer int
	// OnApplied runs on the worker goroutine after a mutation succeeds.
	OnApplied func(ev ingestion.IndexEvent)
}

// Summary counts events over the agent's lifetime.
type Summary struct {
	Accepted int64 `json:"accepted"`
	Applied  int64 `json:"applied"`
	Failed   int64 `json:"failed"`
	Rejected int64 `json:"rejected"`
}

type item struct {
	event    ingestion.IndexEvent
	sentinel bool
}

type job struct {
	event ingestion.IndexEvent
	obj   *content.Object
}

type Agent struct {
	cfg     Config
	indexer Indexer
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	queue []item
	state atomic.Int32

	startOnce sync.Once
	workers   []chan job
	wg        sync.WaitGroup
	done      chan struct{}

	accepted atomic.Int64
	applied  atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
}

func New(cfg Config, indexer Indexer, m *metrics.Metrics) *Agent {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.WorkerBuffer <= 0 {
		cfg.WorkerBuffer = 64
	}
	a := &Agent{
		cfg:     cfg,
		indexer: indexer,
		metrics: m,
		logger:  slog.Default().With("component", "index-agent"),
		done:    make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Start launches the consumer and the worker pool. Mutations carry ctx's
// values but not its cancellation: events already accepted are applied
// during Close even after the caller's context is done.
func (a *Agent) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	a.startOnce.Do(func() {
		a.workers = make([]chan job, a.cfg.Workers)
		for i := range a.workers {
			ch := make(chan job, a.cfg.WorkerBuffer)
			a.workers[i] = ch
			a.wg.Add(1)
			go a.work(ctx, ch)
		}
		go a.consume()
		a.logger.Info("index agent started", "workers", a.cfg.Workers)
	})
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// AddEvent builds and enqueues an event, returning its id. It never blocks
// and never fails the caller; an event offered after Close is counted as
// rejected.
func (a *Agent) AddEvent(creator string, changeType ingestion.ChangeType, dataType string, data json.RawMessage) string {
	ev := ingestion.NewEvent(creator, changeType, dataType, data)
	a.Enqueue(ev)
	return ev.ID
}

// Enqueue appends ev to the queue and reports whether it was accepted.
func (a *Agent) Enqueue(ev ingestion.IndexEvent) bool {
	a.mu.Lock()
	if a.State() != Running {
		a.mu.Unlock()
		a.rejected.Add(1)
		a.count("rejected")
		a.logger.Warn("event rejected, agent not running",
			"event_id", ev.ID,
			"creator", ev.Creator,
			"change_type", ev.ChangeType.String(),
			"data_type", ev.DataType,
		)
		return false
	}
	a.queue = append(a.queue, item{event: ev})
	depth := len(a.queue)
	a.mu.Unlock()
	a.cond.Signal()

	a.accepted.Add(1)
	a.count("accepted")
	a.gauge(depth)
	return true
}

// Publish lets the agent serve as the searcher's direct event intake.
func (a *Agent) Publish(_ context.Context, req *ingestion.EventRequest) (*ingestion.EventResponse, error) {
	ev, err := req.Event()
	if err != nil {
		return nil, err
	}
	if !a.Enqueue(ev) {
		return nil, fmt.Errorf("event %s: %w", ev.ID, apperrors.ErrAgentStopped)
	}
	return &ingestion.EventResponse{EventID: ev.ID, Status: "QUEUED"}, nil
}

// Close stops accepting events, drains the queue and waits for the workers.
// It returns early with ctx's error if draining outlasts ctx; the drain
// continues in the background.
func (a *Agent) Close(ctx context.Context) (Summary, error) {
	a.mu.Lock()
	if a.state.CompareAndSwap(int32(Running), int32(Draining)) {
		a.queue = append(a.queue, item{sentinel: true})
		a.logger.Info("index agent draining", "pending", len(a.queue)-1)
	}
	a.mu.Unlock()
	a.cond.Signal()
	// Close before Start still has to drain.
	a.Start(context.Background())

	select {
	case <-a.done:
		s := a.Summary()
		a.logger.Info("index agent stopped",
			"accepted", s.Accepted,
			"applied", s.Applied,
			"failed", s.Failed,
			"rejected", s.Rejected,
		)
		return s, nil
	case <-ctx.Done():
		return a.Summary(), fmt.Errorf("draining index agent: %w", ctx.Err())
	}
}

// Summary returns a snapshot of the event counters.
func (a *Agent) Summary() Summary {
	return Summary{
		Accepted: a.accepted.Load(),
		Applied:  a.applied.Load(),
		Failed:   a.failed.Load(),
		Rejected: a.rejected.Load(),
	}
}

// Pending returns the number of queued events.
func (a *Agent) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Agent) next() item {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.queue) == 0 {
		a.cond.Wait()
	}
	it := a.queue[0]
	a.queue[0] = item{}
	a.queue = a.queue[1:]
	a.gauge(len(a.queue))
	return it
}

func (a *Agent) consume() {
	for {
		it := a.next()
		if it.sentinel {
			for _, ch := range a.workers {
				close(ch)
			}
			a.wg.Wait()
			a.state.Store(int32(Stopped))
			close(a.done)
			return
		}
		a.route(it.event)
	}
}

// route decodes the payload and hands the mutation to the worker that owns
// the document.
func (a *Agent) route(ev ingestion.IndexEvent) {
	obj, err := ev.Object()
	if err != nil {
		a.fail(ev, err)
		return
	}
	a.workers[a.shard(ev.Creator, obj.Key)] <- job{event: ev, obj: obj}
}

func (a *Agent) shard(entity, key string) int {
	h := xxhash.New()
	_, _ = h.WriteString(entity)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(key)
	return int(h.Sum64() % uint64(len(a.workers)))
}

func (a *Agent) work(ctx context.Context, jobs <-chan job) {
	defer a.wg.Done()
	for j := range jobs {
		if err := a.apply(ctx, j); err != nil {
			a.fail(j.event, err)
			continue
		}
		a.applied.Add(1)
		a.count("applied")
		if a.cfg.OnApplied != nil {
			a.cfg.OnApplied(j.event)
		}
	}
}

func (a *Agent) apply(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutation panicked: %v", r)
		}
	}()
	ev := j.event
	typ := contentType(ev, j.obj)
	switch ev.ChangeType {
	case ingestion.Created, ingestion.Shared:
		_, err = a.indexer.IndexContent(ctx, ev.Creator, typ, j.obj)
	case ingestion.Modified:
		_, err = a.indexer.UpdateContent(ctx, ev.Creator, typ, j.obj)
	case ingestion.Deleted:
		_, err = a.indexer.DeleteContent(ctx, ev.Creator, typ, j.obj)
	default:
		err = fmt.Errorf("change type %s: %w", ev.ChangeType, apperrors.ErrInvalidInput)
	}
	return err
}

// contentType is the catalog an event mutates: its data type, or the
// payload's own type when the event names none.
func contentType(ev ingestion.IndexEvent, obj *content.Object) string {
	if ev.DataType != "" {
		return ev.DataType
	}
	return obj.Type
}

func (a *Agent) fail(ev ingestion.IndexEvent, err error) {
	a.failed.Add(1)
	a.count("failed")
	a.logger.Error("failed to apply content change",
		"event_id", ev.ID,
		"creator", ev.Creator,
		"change_type", ev.ChangeType.String(),
		"data_type", ev.DataType,
		"data", string(ev.Data),
		"error", err,
	)
}

func (a *Agent) count(outcome string) {
	if a.metrics != nil {
		a.metrics.AgentEventsTotal.WithLabelValues(outcome).Inc()
	}
}

func (a *Agent) gauge(depth int) {
	if a.metrics != nil {
		a.metrics.AgentQueueDepth.Set(float64(depth))
	}
}
