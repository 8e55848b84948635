// Package server defines the message model shared by the hub and the client
// actors: connection identities, broadcast scopes and the outbound frame.
package server

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ConnID identifies one live connection. It is both the sender tag on
// messages and the routing target in scope sets.
type ConnID string

// ServerID is the sender of frames generated by the hub itself.
const ServerID ConnID = "server"

// Sentinel is the line that shuts down the sending connection.
const Sentinel = "close"

// Scope selects which connections a message is written to.
type Scope int

const (
	// ScopeAll delivers to every connection, the sender included.
	ScopeAll Scope = iota
	// ScopeExcept delivers to every connection not in the except set.
	ScopeExcept
	// ScopeOnly delivers to the connections in the only set.
	ScopeOnly
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "ALL"
	case ScopeExcept:
		return "EXCEPT"
	case ScopeOnly:
		return "ONLY"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// MarshalText renders the scope as its upper-case name.
func (s Scope) MarshalText() ([]byte, error) {
	switch s {
	case ScopeAll, ScopeExcept, ScopeOnly:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown scope %d", int(s))
	}
}

// IDSet is an immutable set of connection IDs. A nil IDSet means the set is
// absent, which is different from an empty one.
type IDSet map[ConnID]struct{}

// NewIDSet builds a set from the given IDs. It never returns nil.
func NewIDSet(ids ...ConnID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id ConnID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []ConnID {
	ids := make([]ConnID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Message is one broadcast unit. It must not be modified after it has been
// handed to the hub; every recipient shares the same value.
type Message struct {
	Text   string
	Sender ConnID
	Scope  Scope
	Except IDSet
	Only   IDSet
}

// NewMessage creates an ALL-scoped message.
func NewMessage(sender ConnID, text string) Message {
	return Message{Text: text, Sender: sender, Scope: ScopeAll}
}

// DeliverableTo applies the scope rules for recipient id. EXCEPT and ONLY
// messages without their set are delivered to nobody.
func (m Message) DeliverableTo(id ConnID) bool {
	switch m.Scope {
	case ScopeAll:
		return true
	case ScopeExcept:
		if m.Except == nil {
			return false
		}
		return !m.Except.Contains(id)
	case ScopeOnly:
		if m.Only == nil {
			return false
		}
		return m.Only.Contains(id)
	default:
		return false
	}
}

// IsSentinelFrom reports whether m is the shutdown command sent by id. Only
// an unscoped line can be the sentinel.
func (m Message) IsSentinelFrom(id ConnID) bool {
	return m.Scope == ScopeAll && m.Text == Sentinel && m.Sender == id
}

type frame struct {
	Text   string    `json:"text"`
	Sender ConnID    `json:"sender"`
	Scope  Scope     `json:"scope"`
	Except *[]ConnID `json:"except,omitempty"`
	Only   *[]ConnID `json:"only,omitempty"`
}

// Frame renders the message as a single JSON line without the trailing
// newline. Set members are sorted so the rendering is stable; a present but
// empty set is rendered as [].
func (m Message) Frame() ([]byte, error) {
	f := frame{Text: m.Text, Sender: m.Sender, Scope: m.Scope}
	if m.Except != nil {
		ids := m.Except.Sorted()
		f.Except = &ids
	}
	if m.Only != nil {
		ids := m.Only.Sorted()
		f.Only = &ids
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
