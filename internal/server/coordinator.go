// Package server coordinates session registration, name claims, directed
// message routing and connection cleanup via the Coordinator type.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// State is the coordinator's lifecycle stage.
type State int32

// Coordinator states. Transitions only move forward.
const (
	StateRunning State = iota
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Coordinator owns the routing state and processes one event at a time from
// the merged stream of accepted connections, agent events and the shutdown
// signal. Processing order is the only synchronization the routing tables need.
type Coordinator struct {
	cfg         Config
	logger      *zap.Logger
	agentLogger *zap.Logger
	metrics     *Metrics
	newID       func() SessionID

	accept   chan acceptRequest
	events   chan Event
	shutdown chan struct{}
	quit     chan struct{}
	done     chan struct{}

	shutdownOnce sync.Once
	quitOnce     sync.Once
	started      atomic.Bool
	state        atomic.Int32

	routes       *registry
	agents       sync.WaitGroup
	agentCtx     context.Context
	cancelAgents context.CancelFunc
}

// NewCoordinator creates a coordinator in the Running state. Call Run to
// start processing events.
func NewCoordinator(cfg Config, logger *zap.Logger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	cfg = sanitizeConfig(cfg)
	agentCtx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:          cfg,
		logger:       logger.Named("coordinator"),
		agentLogger:  logger.Named("agent"),
		metrics:      metrics,
		newID:        uuid.New,
		accept:       make(chan acceptRequest),
		events:       make(chan Event, cfg.EventQueueDepth),
		shutdown:     make(chan struct{}),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		routes:       newRegistry(),
		agentCtx:     agentCtx,
		cancelAgents: cancel,
	}
}

// State returns the current lifecycle stage.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed once the coordinator has stopped.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Accept hands an upgraded transport to the coordinator, which mints a
// session identity and starts an agent for it. It fails with
// ErrCoordinatorStopped once shutdown has begun; the caller still owns the
// transport in that case.
func (c *Coordinator) Accept(ctx context.Context, t Transport) (SessionID, error) {
	req := acceptRequest{transport: t, reply: make(chan SessionID, 1)}

	select {
	case c.accept <- req:
	case <-c.quit:
		return SessionID{}, ErrCoordinatorStopped
	case <-ctx.Done():
		return SessionID{}, ctx.Err()
	}

	return <-req.reply, nil
}

// Usernames returns a snapshot of the bound names, taken inside the event loop.
func (c *Coordinator) Usernames(ctx context.Context) ([]string, error) {
	req := rosterRequest{reply: make(chan []string, 1)}
	if !c.submit(ctx, req) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrCoordinatorStopped
	}

	select {
	case names := <-req.reply:
		return names, nil
	case <-c.done:
		return nil, ErrCoordinatorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestShutdown signals the event loop to shut down. It does not wait.
func (c *Coordinator) RequestShutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

// Shutdown initiates graceful shutdown and waits for the event loop and all
// agent goroutines to finish, or until the timeout is reached.
// Calling it before Run makes later Accept calls fail with
// ErrCoordinatorStopped.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.logger.Info("initiating coordinator shutdown")
	c.RequestShutdown()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if !c.started.Load() {
		c.closeQuit()
	} else {
		select {
		case <-c.done:
		case <-timer.C:
			return context.DeadlineExceeded
		}
	}

	agentsDone := make(chan struct{})
	go func() {
		c.agents.Wait()
		close(agentsDone)
	}()

	select {
	case <-agentsDone:
		c.logger.Info("coordinator shutdown completed")
		return nil
	case <-timer.C:
		c.cancelAgents()
		c.logger.Warn("coordinator shutdown timeout reached, some agents may still be running")
		return context.DeadlineExceeded
	}
}

// submit enqueues an event for the loop. It gives up when ctx ends or the
// coordinator has stopped.
func (c *Coordinator) submit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run processes events until shutdown is requested or ctx is cancelled. It
// may be called only once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.logger.Info("coordinator running",
		zap.Int("agent_queue_depth", c.cfg.AgentQueueDepth),
		zap.Duration("delivery_timeout", c.cfg.DeliveryTimeout))

	for {
		select {
		case <-ctx.Done():
			c.stop("context cancelled")
			return nil

		case <-c.shutdown:
			c.stop("shutdown requested")
			return nil

		case req := <-c.accept:
			c.handleAccept(req)

		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) handleAccept(req acceptRequest) {
	id := c.newID()
	commands := make(chan Command, c.cfg.AgentQueueDepth)
	a := newAgent(id, req.transport, commands, c, c.cfg, c.agentLogger, c.metrics)

	c.routes.add(&sessionRecord{
		id:    id,
		addr:  req.transport.RemoteAddr(),
		agent: agentHandle{commands: commands, done: a.done},
	})

	c.agents.Add(1)
	go func() {
		defer c.agents.Done()
		a.run(c.agentCtx)
	}()

	req.reply <- id
	c.metrics.accepted.Inc()
	c.metrics.observeRouting(c.routes)
	c.logger.Info("session accepted",
		zap.Stringer("session", id),
		zap.String("addr", req.transport.RemoteAddr()),
		zap.Int("sessions", c.routes.sessionCount()))
}

func (c *Coordinator) handleEvent(ev Event) {
	c.metrics.events.WithLabelValues(ev.eventKind()).Inc()

	switch ev := ev.(type) {
	case ReceivedFromClient:
		c.handleClientMessage(ev)
	case ConnectionClosed:
		c.handleClosed(ev.Session)
	case rosterRequest:
		ev.reply <- c.routes.usernames()
	default:
		c.logger.Warn("ignoring unknown event", zap.String("kind", ev.eventKind()))
	}
}

func (c *Coordinator) handleClientMessage(ev ReceivedFromClient) {
	sender, ok := c.routes.session(ev.Session)
	if !ok {
		c.logger.Warn("message from unknown session", zap.Stringer("session", ev.Session))
		return
	}

	switch ev.Message.Kind {
	case protocol.ClientSetUsername:
		c.setUsername(sender, ev.Message.Name)
	case protocol.ClientGetUsernames:
		c.reply(sender, protocol.Usernames(c.routes.usernames()))
	case protocol.ClientTextTo:
		c.textTo(sender, ev.Message.Recipient, ev.Message.Text)
	case protocol.ClientNone:
		c.logger.Debug("ignoring empty message", zap.Stringer("session", sender.id))
	default:
		c.logger.Warn("ignoring unknown message kind",
			zap.Stringer("session", sender.id),
			zap.Stringer("kind", ev.Message.Kind))
	}
}

func (c *Coordinator) setUsername(sender *sessionRecord, name string) {
	if err := c.routes.bind(sender.id, name); err != nil {
		c.logger.Info("username rejected",
			zap.Stringer("session", sender.id),
			zap.String("name", name),
			zap.Error(err))
		c.reply(sender, protocol.Err(err.Error()))
		return
	}

	c.metrics.observeRouting(c.routes)
	c.logger.Info("username set", zap.Stringer("session", sender.id), zap.String("name", name))
	c.reply(sender, protocol.Ok(fmt.Sprintf("Set username %s successfully!", name)))
}

// textTo relays text to the recipient first and acknowledges the sender
// second, so the sender never sees Ok for a message that was not queued.
func (c *Coordinator) textTo(sender *sessionRecord, recipient, text string) {
	if !sender.named {
		c.reply(sender, protocol.Err(ErrSenderUnnamed.Error()))
		return
	}

	target, ok := c.routes.resolve(recipient)
	if !ok {
		c.reply(sender, protocol.Err(ErrRecipientMissing.Error()))
		return
	}

	if err := c.deliver(target, SendToClient{Message: protocol.TextFrom(sender.name, text)}); err != nil {
		c.logger.Warn("relay failed",
			zap.String("from", sender.name),
			zap.String("to", recipient),
			zap.Error(err))
		c.reply(sender, protocol.Err(ErrRecipientUnavailable.Error()))
		return
	}

	c.reply(sender, protocol.Ok(fmt.Sprintf("Sent message to %s", recipient)))
}

func (c *Coordinator) handleClosed(id SessionID) {
	rec, ok := c.routes.remove(id)
	if !ok {
		c.logger.Debug("closure for unknown session", zap.Stringer("session", id))
		return
	}

	c.metrics.observeRouting(c.routes)
	fields := []zap.Field{
		zap.Stringer("session", id),
		zap.String("addr", rec.addr),
		zap.Int("sessions", c.routes.sessionCount()),
	}
	if rec.named {
		fields = append(fields, zap.String("name", rec.name))
	}
	c.logger.Info("session closed", fields...)
}

func (c *Coordinator) reply(rec *sessionRecord, msg protocol.ServerMessage) {
	if err := c.deliver(rec, SendToClient{Message: msg}); err != nil {
		c.logger.Warn("dropping reply",
			zap.Stringer("session", rec.id),
			zap.Stringer("kind", msg.Kind),
			zap.Error(err))
	}
}

// deliver queues cmd on the agent's channel. A full queue is waited on for at
// most DeliveryTimeout; an agent that has already stopped fails immediately.
func (c *Coordinator) deliver(rec *sessionRecord, cmd Command) error {
	select {
	case rec.agent.commands <- cmd:
		return nil
	case <-rec.agent.done:
		c.metrics.deliveryFailures.WithLabelValues("agent_stopped").Inc()
		return fmt.Errorf("%w: agent stopped", ErrDeliveryFailed)
	default:
	}

	timer := time.NewTimer(c.cfg.DeliveryTimeout)
	defer timer.Stop()

	select {
	case rec.agent.commands <- cmd:
		return nil
	case <-rec.agent.done:
		c.metrics.deliveryFailures.WithLabelValues("agent_stopped").Inc()
		return fmt.Errorf("%w: agent stopped", ErrDeliveryFailed)
	case <-timer.C:
		c.metrics.deliveryFailures.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w: queue full for %s", ErrDeliveryFailed, c.cfg.DeliveryTimeout)
	}
}

func (c *Coordinator) closeQuit() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// stop moves through ShuttingDown to Stopped: every agent is told to shut
// down, then closures are drained until all sessions are gone or the
// shutdown timeout passes. Remaining agents are cancelled.
func (c *Coordinator) stop(reason string) {
	c.state.Store(int32(StateShuttingDown))
	c.closeQuit()
	c.logger.Info("shutting down", zap.String("reason", reason), zap.Int("sessions", c.routes.sessionCount()))

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()

	var pending sync.WaitGroup
	c.broadcastShutdown(ctx, &pending)
	c.drain(ctx)
	cancel()
	pending.Wait()
	c.cancelAgents()
	c.state.Store(int32(StateStopped))
	c.metrics.observeRouting(c.routes)
	c.logger.Info("coordinator stopped")
}

// broadcastShutdown hands Shutdown to every agent whose queue has room right
// away. Agents with a full queue are waited on concurrently until ctx ends,
// so one slow client cannot hold back the others.
func (c *Coordinator) broadcastShutdown(ctx context.Context, pending *sync.WaitGroup) {
	for _, rec := range c.routes.records() {
		select {
		case rec.agent.commands <- Shutdown{}:
			continue
		case <-rec.agent.done:
			continue
		default:
		}

		pending.Add(1)
		go func(id SessionID, agent agentHandle) {
			defer pending.Done()
			select {
			case agent.commands <- Shutdown{}:
			case <-agent.done:
			case <-ctx.Done():
				c.metrics.deliveryFailures.WithLabelValues("shutdown_timeout").Inc()
				c.logger.Debug("shutdown not delivered", zap.Stringer("session", id))
			}
		}(rec.id, rec.agent)
	}
}

// drain consumes events while agents unwind. Only closures and roster
// requests are honoured; client messages are dropped.
func (c *Coordinator) drain(ctx context.Context) {
	for c.routes.sessionCount() > 0 {
		select {
		case ev := <-c.events:
			switch ev := ev.(type) {
			case ConnectionClosed:
				c.handleClosed(ev.Session)
			case rosterRequest:
				ev.reply <- c.routes.usernames()
			default:
				c.logger.Debug("dropping event during shutdown", zap.String("kind", ev.eventKind()))
			}
		case <-ctx.Done():
			c.logger.Warn("shutdown timeout reached with sessions still open",
				zap.Int("sessions", c.routes.sessionCount()))
			return
		}
	}
}
