// Package console is the relay operator's stdin command surface. Lines are
// split with the input tokenizer; the first token selects the command.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/input"
)

// Controller is the part of the coordinator the console drives.
type Controller interface {
	RequestShutdown()
	Usernames(ctx context.Context) ([]string, error)
}

const rosterTimeout = 2 * time.Second

const helpText = `Commands:
  close       shut down the relay
  usernames   list bound usernames
  help        show this message`

// Console reads operator commands from in and writes replies to out.
type Console struct {
	in     io.Reader
	out    io.Writer
	ctrl   Controller
	logger *zap.Logger
}

// New creates a console bound to ctrl.
func New(in io.Reader, out io.Writer, ctrl Controller, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{in: in, out: out, ctrl: ctrl, logger: logger.Named("console")}
}

// Run processes lines until `close` is entered, the input ends, or ctx is
// cancelled. A read blocked on in is abandoned when ctx ends.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.println("Please follow the instructions to interact with the server.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading console input: %w", err)
			}
			return nil
		case line := <-lines:
			if stop := c.Execute(ctx, line); stop {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the console should stop.
func (c *Console) Execute(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}

	tokens, err := input.Parse(line)
	if err != nil {
		c.println("Error: " + err.Error())
		return false
	}
	if len(tokens) == 0 {
		return false
	}

	word, ok := tokens[0].Word()
	if !ok || tokens[0].Kind != input.General {
		c.println("Invalid command: " + tokens[0].String())
		return false
	}

	switch word {
	case "close":
		c.logger.Info("shutdown requested from console")
		c.ctrl.RequestShutdown()
		return true

	case "usernames":
		rctx, cancel := context.WithTimeout(ctx, rosterTimeout)
		defer cancel()
		names, err := c.ctrl.Usernames(rctx)
		if err != nil {
			c.println("Error: " + err.Error())
			return false
		}
		if len(names) == 0 {
			c.println("No usernames bound")
			return false
		}
		c.println("Usernames: " + strings.Join(names, ", "))
		return false

	case "help":
		c.println(helpText)
		return false

	default:
		c.println("Invalid command: " + tokens[0].String())
		return false
	}
}

func (c *Console) println(s string) {
	if _, err := fmt.Fprintln(c.out, s); err != nil {
		c.logger.Debug("console write failed", zap.Error(err))
	}
}
