package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

const shutdownReason = "server shutting down"

var errAgentShutdown = errors.New("agent shut down by coordinator")

// eventSink is where an agent delivers its events. It reports false when the
// event could not be delivered because ctx ended or the coordinator stopped.
type eventSink interface {
	submit(ctx context.Context, ev Event) bool
}

// agent bridges one client transport to the coordinator. It runs a read loop
// and a write loop; whichever ends first cancels the other.
type agent struct {
	id           SessionID
	transport    Transport
	commands     <-chan Command
	sink         eventSink
	logger       *zap.Logger
	metrics      *Metrics
	pingInterval time.Duration

	done       chan struct{}
	closedOnce sync.Once
}

func newAgent(id SessionID, t Transport, commands <-chan Command, sink eventSink, cfg Config, logger *zap.Logger, metrics *Metrics) *agent {
	return &agent{
		id:           id,
		transport:    t,
		commands:     commands,
		sink:         sink,
		logger:       logger.With(zap.Stringer("session", id), zap.String("addr", t.RemoteAddr())),
		metrics:      metrics,
		pingInterval: cfg.PingInterval,
		done:         make(chan struct{}),
	}
}

// run drives the session until the peer goes away, the coordinator orders a
// shutdown, or ctx is cancelled. It always reports ConnectionClosed once.
func (a *agent) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.readLoop(gctx) })
	g.Go(func() error { return a.writeLoop(gctx) })
	err := g.Wait()

	close(a.done)
	a.notifyClosed()

	switch {
	case errors.Is(err, errAgentShutdown), errors.Is(err, ErrTransportClosed), errors.Is(err, context.Canceled):
		a.logger.Info("session ended", zap.NamedError("cause", err))
	default:
		a.logger.Warn("session ended with error", zap.Error(err))
	}
}

func (a *agent) notifyClosed() {
	a.closedOnce.Do(func() {
		if !a.sink.submit(context.Background(), ConnectionClosed{Session: a.id}) {
			a.logger.Debug("coordinator stopped before connection closure was reported")
		}
	})
}

// readLoop forwards decoded client messages. Malformed frames are dropped.
func (a *agent) readLoop(ctx context.Context) error {
	for {
		frame, err := a.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrUnsupportedFrame) {
				a.discard(err)
				continue
			}
			return err
		}

		msg, err := protocol.DecodeClient(frame)
		if err != nil {
			a.discard(err)
			continue
		}

		a.logger.Debug("received message", zap.Stringer("kind", msg.Kind))
		if !a.sink.submit(ctx, ReceivedFromClient{Session: a.id, Message: msg}) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrCoordinatorStopped
		}
	}
}

func (a *agent) discard(err error) {
	a.metrics.protocolErrors.Inc()
	a.logger.Warn("discarding invalid frame", zap.Error(err))
}

// writeLoop applies coordinator commands in order and keeps the connection
// alive with pings. It closes the transport on exit, which unblocks readLoop.
func (a *agent) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.pingInterval)
	defer func() {
		ticker.Stop()
		if err := a.transport.Close(); err != nil {
			a.logger.Debug("error closing transport", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-a.commands:
			if err := a.apply(cmd); err != nil {
				return err
			}

		case <-ticker.C:
			if err := a.transport.Ping(); err != nil {
				return fmt.Errorf("writing ping: %w", err)
			}
		}
	}
}

func (a *agent) apply(cmd Command) error {
	switch cmd := cmd.(type) {
	case SendToClient:
		payload, err := json.Marshal(cmd.Message)
		if err != nil {
			a.logger.Error("cannot encode outbound message", zap.Stringer("kind", cmd.Message.Kind), zap.Error(err))
			return nil
		}
		if err := a.transport.WriteFrame(payload); err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
		a.metrics.framesSent.Inc()
		return nil

	case Shutdown:
		if err := a.transport.WriteClose(shutdownReason); err != nil {
			a.logger.Debug("error writing close frame", zap.Error(err))
		}
		return errAgentShutdown

	default:
		a.logger.Warn("ignoring unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
		return nil
	}
}
