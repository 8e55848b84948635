package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageDeliverableTo(t *testing.T) {
	const self ConnID = "self"

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"all", Message{Scope: ScopeAll}, true},
		{"except without self", Message{Scope: ScopeExcept, Except: NewIDSet("other")}, true},
		{"except with self", Message{Scope: ScopeExcept, Except: NewIDSet("other", self)}, false},
		{"except empty set", Message{Scope: ScopeExcept, Except: NewIDSet()}, true},
		{"except missing set", Message{Scope: ScopeExcept}, false},
		{"only with self", Message{Scope: ScopeOnly, Only: NewIDSet(self)}, true},
		{"only without self", Message{Scope: ScopeOnly, Only: NewIDSet("other")}, false},
		{"only empty set", Message{Scope: ScopeOnly, Only: NewIDSet()}, false},
		{"only missing set", Message{Scope: ScopeOnly}, false},
		{"only ignores except set", Message{Scope: ScopeOnly, Except: NewIDSet("other")}, false},
		{"unknown scope", Message{Scope: Scope(42)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.DeliverableTo(self))
		})
	}
}

func TestMessageIsSentinelFrom(t *testing.T) {
	assert.True(t, NewMessage("a", "close").IsSentinelFrom("a"))
	assert.False(t, NewMessage("a", "close").IsSentinelFrom("b"))
	assert.False(t, NewMessage("a", "close ").IsSentinelFrom("a"))
	assert.False(t, NewMessage("a", "CLOSE").IsSentinelFrom("a"))

	scoped := Message{Text: "close", Sender: "a", Scope: ScopeOnly, Only: NewIDSet("b")}
	assert.False(t, scoped.IsSentinelFrom("a"))
}

func TestMessageFrame(t *testing.T) {
	t.Run("all scope omits sets", func(t *testing.T) {
		data, err := NewMessage("a", "hello").Frame()
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"hello","sender":"a","scope":"ALL"}`, string(data))
	})

	t.Run("sets are sorted", func(t *testing.T) {
		msg := Message{Text: "x", Sender: "a", Scope: ScopeExcept, Except: NewIDSet("c", "b")}
		first, err := msg.Frame()
		require.NoError(t, err)
		assert.Equal(t, `{"text":"x","sender":"a","scope":"EXCEPT","except":["b","c"]}`, string(first))

		for range 10 {
			again, err := msg.Frame()
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("empty set is kept", func(t *testing.T) {
		data, err := Message{Text: "x", Sender: "a", Scope: ScopeOnly, Only: NewIDSet()}.Frame()
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"x","sender":"a","scope":"ONLY","only":[]}`, string(data))
	})

	t.Run("unknown scope fails", func(t *testing.T) {
		_, err := Message{Scope: Scope(9)}.Frame()
		assert.Error(t, err)
	})
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "ALL", ScopeAll.String())
	assert.Equal(t, "EXCEPT", ScopeExcept.String())
	assert.Equal(t, "ONLY", ScopeOnly.String())
	assert.Equal(t, "Scope(7)", Scope(7).String())
}
