package server

import "github.com/Tyrowin/chatrelay/internal/protocol"

// Event is anything delivered into the coordinator's event queue.
type Event interface {
	eventKind() string
}

// ReceivedFromClient carries a decoded client message from an agent.
type ReceivedFromClient struct {
	Session SessionID
	Message protocol.ClientMessage
}

// ConnectionClosed reports that an agent has terminated. Each agent emits it
// exactly once.
type ConnectionClosed struct {
	Session SessionID
}

// rosterRequest asks the coordinator for a snapshot of bound names on behalf
// of an in-process caller such as the operator console.
type rosterRequest struct {
	reply chan []string
}

func (ReceivedFromClient) eventKind() string { return "received_from_client" }
func (ConnectionClosed) eventKind() string   { return "connection_closed" }
func (rosterRequest) eventKind() string      { return "roster_request" }

// Command is issued by the coordinator to a single agent.
type Command interface {
	commandKind() string
}

// SendToClient asks the agent to encode and write one message.
type SendToClient struct {
	Message protocol.ServerMessage
}

// Shutdown asks the agent to send a close frame and end its session.
type Shutdown struct{}

func (SendToClient) commandKind() string { return "send_to_client" }
func (Shutdown) commandKind() string     { return "shutdown" }

// acceptRequest hands a freshly upgraded transport to the coordinator.
type acceptRequest struct {
	transport Transport
	reply     chan SessionID
}
