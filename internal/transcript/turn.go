package transcript

import (
	"bytes"
	"encoding/json"
	"iter"
	"strings"
)

// Role labels who produced a turn. Roles come from the log and are not
// limited to the constants below.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUnlabeled Role = "unlabeled"
)

// Turn is one classified entry of the conversation.
type Turn struct {
	Line   int    `json:"line"`
	Role   Role   `json:"role"`
	Type   string `json:"entry_type,omitempty"`
	Blocks Blocks `json:"content"`

	// Metadata holds every entry field except "type" and "message".
	Metadata map[string]json.RawMessage `json:"metadata"`
	// MessageMeta holds message fields other than "role" and "content"
	// (model, id, usage, ...).
	MessageMeta map[string]json.RawMessage `json:"message_meta,omitempty"`
}

// Blocks is an ordered list of content blocks.
type Blocks []Block

// MarshalJSON encodes a nil list as [] so clients can always iterate.
func (b Blocks) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Block(b))
}

// Meta returns a string metadata field, or "" when absent or not a string.
func (t Turn) Meta(key string) string {
	raw, ok := t.Metadata[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Text joins the text blocks of the turn.
func (t Turn) Text() string {
	var parts []string
	for _, b := range t.Blocks {
		if tb, ok := b.(TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Turns projects each entry into a turn, preserving order. Every entry
// produces a turn, including ones with no content and no metadata.
func Turns(entries iter.Seq[Entry]) iter.Seq[Turn] {
	return func(yield func(Turn) bool) {
		for e := range entries {
			if !yield(Project(e)) {
				return
			}
		}
	}
}

// Conversation parses text and returns the turns of the conversation view,
// with progress records filtered out.
func Conversation(text string) []Turn {
	out := []Turn{}
	for t := range Turns(ConversationEntries(text)) {
		out = append(out, t)
	}
	return out
}

// AllTurns is Conversation including progress records.
func AllTurns(text string) []Turn {
	out := []Turn{}
	for t := range Turns(Entries(text)) {
		out = append(out, t)
	}
	return out
}

// Project classifies a single entry.
//
// Role is message.role when present, else the entry type, else
// RoleUnlabeled. A string message.content (or a bare string message) is a
// single text block; an array is classified block by block; any other
// non-null content, or a message that is not an object, is kept as one
// OtherBlock.
func Project(e Entry) Turn {
	t := Turn{
		Line:     e.Line,
		Type:     e.Type,
		Metadata: make(map[string]json.RawMessage, len(e.Fields)),
	}
	for k, v := range e.Fields {
		if k == "type" || k == "message" {
			continue
		}
		t.Metadata[k] = v
	}

	var role string
	if raw, ok := e.Fields["message"]; ok {
		role, t.Blocks, t.MessageMeta = projectMessage(raw)
	}

	switch {
	case role != "":
		t.Role = Role(role)
	case e.Type != "":
		t.Role = Role(e.Type)
	default:
		t.Role = RoleUnlabeled
	}
	return t
}

func projectMessage(raw json.RawMessage) (role string, blocks Blocks, meta map[string]json.RawMessage) {
	if isNull(raw) {
		return "", nil, nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return "", Blocks{TextBlock{Text: s}}, nil
	}

	var msg map[string]json.RawMessage
	if json.Unmarshal(raw, &msg) != nil || msg == nil {
		return "", Blocks{OtherBlock{Raw: raw}}, nil
	}

	if r, ok := msg["role"]; ok {
		_ = json.Unmarshal(r, &role)
	}
	if c, ok := msg["content"]; ok {
		blocks = projectContent(c)
	}
	for k, v := range msg {
		if k == "role" || k == "content" {
			continue
		}
		if meta == nil {
			meta = make(map[string]json.RawMessage)
		}
		meta[k] = v
	}
	return role, blocks, meta
}

func projectContent(raw json.RawMessage) Blocks {
	if isNull(raw) {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return Blocks{TextBlock{Text: s}}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) == nil {
		blocks := make(Blocks, 0, len(items))
		for _, item := range items {
			blocks = append(blocks, classifyBlock(item))
		}
		return blocks
	}
	return Blocks{OtherBlock{Raw: raw}}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
