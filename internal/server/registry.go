package server

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// agentHandle is the coordinator's view of an agent: where to send commands
// and a channel that closes once the agent has stopped reading them.
type agentHandle struct {
	commands chan<- Command
	done     <-chan struct{}
}

// sessionRecord is the per-session state kept by the coordinator.
type sessionRecord struct {
	id    SessionID
	addr  string
	agent agentHandle
	name  string
	named bool
}

// registry holds the session records and the name registry. It is not safe
// for concurrent use; only the coordinator goroutine may call it.
type registry struct {
	sessions map[SessionID]*sessionRecord
	names    map[string]SessionID
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[SessionID]*sessionRecord),
		names:    make(map[string]SessionID),
	}
}

func (r *registry) add(rec *sessionRecord) {
	r.sessions[rec.id] = rec
}

func (r *registry) session(id SessionID) (*sessionRecord, bool) {
	rec, ok := r.sessions[id]
	return rec, ok
}

// bind assigns name to the session. A session is named at most once and a
// name belongs to at most one session.
func (r *registry) bind(id SessionID, name string) error {
	rec, ok := r.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if rec.named {
		return ErrAlreadyNamed
	}
	if _, taken := r.names[name]; taken {
		return ErrNameTaken
	}

	r.names[name] = id
	rec.name = name
	rec.named = true
	return nil
}

// resolve finds the live session bound to name.
func (r *registry) resolve(name string) (*sessionRecord, bool) {
	id, ok := r.names[name]
	if !ok {
		return nil, false
	}
	rec, ok := r.sessions[id]
	return rec, ok
}

// remove drops the session and releases its name, if any.
func (r *registry) remove(id SessionID) (*sessionRecord, bool) {
	rec, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	if rec.named && r.names[rec.name] == id {
		delete(r.names, rec.name)
	}
	return rec, true
}

// usernames returns the bound names in lexical order.
func (r *registry) usernames() []string {
	names := lo.Keys(r.names)
	sort.Strings(names)
	return names
}

func (r *registry) records() []*sessionRecord {
	return lo.Values(r.sessions)
}

func (r *registry) sessionCount() int { return len(r.sessions) }

func (r *registry) namedCount() int { return len(r.names) }
