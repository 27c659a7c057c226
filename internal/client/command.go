package client

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/chatrelay/internal/input"
	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// Command errors.
var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("wrong arguments")
)

// Usage lists the commands understood by ParseCommand.
const Usage = `Commands:
  set_name "<name>"           claim a username
  send "<name>" "<text>"      send text to a user
  usernames                   list bound usernames
  close                       disconnect and exit`

// Command is one parsed console line: either a message to send or a request
// to quit.
type Command struct {
	Message protocol.ClientMessage
	Quit    bool
}

// ParseCommand tokenizes line and maps it onto a client message.
func ParseCommand(line string) (Command, error) {
	tokens, err := input.Parse(line)
	if err != nil {
		return Command{}, err
	}
	if len(tokens) == 0 {
		return Command{}, ErrEmptyCommand
	}

	name, ok := tokens[0].Word()
	if !ok || tokens[0].Kind != input.General {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, tokens[0])
	}
	args := tokens[1:]

	switch name {
	case "send":
		parts, ok := words(args, 2)
		if !ok {
			return Command{}, fmt.Errorf(`%w: send "<name>" "<text>"`, ErrUsage)
		}
		return Command{Message: protocol.TextTo(parts[0], parts[1])}, nil

	case "set_name":
		parts, ok := words(args, 1)
		if !ok {
			return Command{}, fmt.Errorf(`%w: set_name "<name>"`, ErrUsage)
		}
		return Command{Message: protocol.SetUsername(parts[0])}, nil

	case "usernames":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: usernames takes no arguments", ErrUsage)
		}
		return Command{Message: protocol.GetUsernames()}, nil

	case "close":
		return Command{Quit: true}, nil

	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

// words returns the text of exactly n word tokens.
func words(tokens []input.Token, n int) ([]string, bool) {
	if len(tokens) != n {
		return nil, false
	}
	out := make([]string, 0, n)
	for _, tok := range tokens {
		w, ok := tok.Word()
		if !ok {
			return nil, false
		}
		out = append(out, w)
	}
	return out, true
}
