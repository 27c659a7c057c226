package client

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// Printer renders server messages for a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	sender *color.Color
	ok     *color.Color
	failed *color.Color
	info   *color.Color
}

// NewPrinter writes to out. Colors follow color.NoColor.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out:    out,
		sender: color.New(color.FgCyan, color.Bold),
		ok:     color.New(color.FgGreen),
		failed: color.New(color.FgRed),
		info:   color.New(color.FgHiBlack),
	}
}

// Print writes one server message as a single line.
func (p *Printer) Print(msg protocol.ServerMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Kind {
	case protocol.ServerTextFrom:
		p.sender.Fprint(p.out, msg.Sender+": ")
		_, _ = io.WriteString(p.out, msg.Text+"\n")
	case protocol.ServerUsernames:
		if len(msg.Usernames) == 0 {
			p.info.Fprintln(p.out, "No usernames bound")
			return
		}
		p.info.Fprintln(p.out, "Usernames: "+strings.Join(msg.Usernames, ", "))
	case protocol.ServerResponse:
		if msg.Result.OK {
			p.ok.Fprintln(p.out, msg.Result.Message)
			return
		}
		p.failed.Fprintln(p.out, "Error: "+msg.Result.Message)
	}
}

// Info writes a status line.
func (p *Printer) Info(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info.Fprintln(p.out, line)
}

// Error writes an error line.
func (p *Printer) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed.Fprintln(p.out, "Error: "+err.Error())
}
