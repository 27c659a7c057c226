package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

var errQuit = errors.New("quit requested")

// Session runs an interactive console over a connection: lines from in are
// parsed as commands and sent, and server messages are printed as they
// arrive.
type Session struct {
	conn    *Conn
	in      io.Reader
	printer *Printer
	logger  *zap.Logger
	closing atomic.Bool
}

// NewSession binds a console to conn.
func NewSession(conn *Conn, in io.Reader, printer *Printer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{conn: conn, in: in, printer: printer, logger: logger}
}

// Run returns when the user closes the session, the server closes the
// connection, the input ends, or ctx is cancelled. The connection is closed
// on return.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	go s.scan(gctx, lines)

	g.Go(func() error {
		defer func() {
			s.closing.Store(true)
			_ = s.conn.Close()
		}()
		return s.inputLoop(gctx, lines)
	})
	g.Go(func() error { return s.receiveLoop() })

	err := g.Wait()
	switch {
	case errors.Is(err, errQuit), errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		return nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return nil
	default:
		return err
	}
}

func (s *Session) scan(ctx context.Context, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("input ended with error", zap.Error(err))
	}
}

func (s *Session) inputLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			if err := s.handleLine(line); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleLine(line string) error {
	cmd, err := ParseCommand(line)
	switch {
	case errors.Is(err, ErrEmptyCommand):
		return nil
	case err != nil:
		s.printer.Error(err)
		return nil
	case cmd.Quit:
		return errQuit
	}

	if err := s.conn.Send(cmd.Message); err != nil {
		return fmt.Errorf("sending %s: %w", cmd.Message.Kind, err)
	}
	return nil
}

func (s *Session) receiveLoop() error {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			if errors.Is(err, protocol.ErrMalformed) {
				s.logger.Warn("ignoring malformed server message", zap.Error(err))
				continue
			}
			if ce := (*websocket.CloseError)(nil); errors.As(err, &ce) {
				s.printer.Info("Connection closed by server: " + closeText(ce))
			}
			return err
		}
		s.printer.Print(msg)
	}
}

func closeText(ce *websocket.CloseError) string {
	if ce.Text != "" {
		return ce.Text
	}
	return fmt.Sprintf("code %d", ce.Code)
}
