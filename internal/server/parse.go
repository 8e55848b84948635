package server

import "strings"

const (
	onlyDirective   = "/only"
	exceptDirective = "/except"
)

// ParseLine turns one inbound line into a message from sender. The line
// terminator must already be stripped.
//
// Two directives narrow the scope:
//
//	/only id1,id2 text
//	/except id1,id2 text
//
// A directive without IDs yields an empty set. Every other line, including
// unknown slash commands, is an ALL-scoped message carrying the line verbatim.
func ParseLine(sender ConnID, line string) Message {
	directive, rest, _ := strings.Cut(line, " ")
	switch directive {
	case onlyDirective:
		ids, text := splitTargets(rest)
		return Message{Text: text, Sender: sender, Scope: ScopeOnly, Only: ids}
	case exceptDirective:
		ids, text := splitTargets(rest)
		return Message{Text: text, Sender: sender, Scope: ScopeExcept, Except: ids}
	default:
		return NewMessage(sender, line)
	}
}

// splitTargets reads a comma separated ID list followed by the message text.
func splitTargets(rest string) (IDSet, string) {
	list, text, _ := strings.Cut(rest, " ")
	set := NewIDSet()
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			set[ConnID(id)] = struct{}{}
		}
	}
	return set, text
}

// trimLineEnding strips one trailing "\n" or "\r\n".
func trimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
