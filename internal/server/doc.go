// Package server implements the chat relay: the HTTP and WebSocket surface,
// the per-connection agents, and the coordinator that owns all routing state.
//
// Routing state (sessions and the name registry) is touched only from the
// coordinator goroutine. Agents talk to the coordinator exclusively through
// its event queue and receive commands on their own bounded channel, so no
// lock guards the routing tables.
package server
