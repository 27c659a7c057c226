// Package protocol defines the JSON messages exchanged between chat clients
// and the relay. Every message travels in its own WebSocket text frame and is
// encoded as an externally tagged value: unit variants are bare strings
// ("GetUsernames") and data-carrying variants are single-key objects
// ({"SetUsername":"alice"}).
package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when a frame cannot be decoded into a message.
var ErrMalformed = errors.New("malformed message")

// ClientKind enumerates the messages a client may send.
type ClientKind int

// Client message kinds.
const (
	ClientNone ClientKind = iota
	ClientTextTo
	ClientGetUsernames
	ClientSetUsername
)

func (k ClientKind) String() string {
	switch k {
	case ClientNone:
		return "None"
	case ClientTextTo:
		return "TextTo"
	case ClientGetUsernames:
		return "GetUsernames"
	case ClientSetUsername:
		return "SetUsername"
	default:
		return fmt.Sprintf("ClientKind(%d)", int(k))
	}
}

// ClientMessage is a message sent from a client to the relay.
// Recipient and Text are set for TextTo; Name is set for SetUsername.
type ClientMessage struct {
	Kind      ClientKind
	Recipient string
	Text      string
	Name      string
}

// TextTo builds a directed text message.
func TextTo(recipient, text string) ClientMessage {
	return ClientMessage{Kind: ClientTextTo, Recipient: recipient, Text: text}
}

// GetUsernames builds a roster request.
func GetUsernames() ClientMessage {
	return ClientMessage{Kind: ClientGetUsernames}
}

// SetUsername builds a name claim.
func SetUsername(name string) ClientMessage {
	return ClientMessage{Kind: ClientSetUsername, Name: name}
}

// ServerKind enumerates the messages the relay may send.
type ServerKind int

// Server message kinds.
const (
	ServerNone ServerKind = iota
	ServerTextFrom
	ServerUsernames
	ServerResponse
)

func (k ServerKind) String() string {
	switch k {
	case ServerNone:
		return "None"
	case ServerTextFrom:
		return "TextFrom"
	case ServerUsernames:
		return "Usernames"
	case ServerResponse:
		return "Response"
	default:
		return fmt.Sprintf("ServerKind(%d)", int(k))
	}
}

// Result is the payload of a Response: either Ok(Message) or Err(Message).
type Result struct {
	OK      bool
	Message string
}

// ServerMessage is a message sent from the relay to a client.
type ServerMessage struct {
	Kind      ServerKind
	Sender    string
	Text      string
	Usernames []string
	Result    Result
}

// TextFrom builds a relayed text message.
func TextFrom(sender, text string) ServerMessage {
	return ServerMessage{Kind: ServerTextFrom, Sender: sender, Text: text}
}

// Usernames builds a roster reply.
func Usernames(names []string) ServerMessage {
	if names == nil {
		names = []string{}
	}
	return ServerMessage{Kind: ServerUsernames, Usernames: names}
}

// Ok builds a successful Response.
func Ok(message string) ServerMessage {
	return ServerMessage{Kind: ServerResponse, Result: Result{OK: true, Message: message}}
}

// Err builds a failed Response.
func Err(message string) ServerMessage {
	return ServerMessage{Kind: ServerResponse, Result: Result{OK: false, Message: message}}
}
