package transcript

import (
	"encoding/json"
	"strings"
)

// BlockKind tags a content block.
type BlockKind string

const (
	KindText       BlockKind = "text"
	KindToolUse    BlockKind = "tool_use"
	KindToolResult BlockKind = "tool_result"
	KindOther      BlockKind = "other"
)

// Block is one typed fragment of a turn. The set of implementations is
// closed; anything unrecognised becomes an OtherBlock.
type Block interface {
	Kind() BlockKind
	block()
}

// TextBlock is plain text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation issued by the agent.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock is the output returned for a tool invocation.
type ToolResultBlock struct {
	ToolUseID string
	Content   json.RawMessage
	IsError   bool
}

// OtherBlock keeps a block of unknown or malformed shape verbatim.
type OtherBlock struct {
	Type string // the block's own "type" tag, if it had one
	Raw  json.RawMessage
}

func (TextBlock) Kind() BlockKind       { return KindText }
func (ToolUseBlock) Kind() BlockKind    { return KindToolUse }
func (ToolResultBlock) Kind() BlockKind { return KindToolResult }
func (OtherBlock) Kind() BlockKind      { return KindOther }

func (TextBlock) block()       {}
func (ToolUseBlock) block()    {}
func (ToolResultBlock) block() {}
func (OtherBlock) block()      {}

func (b TextBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type BlockKind `json:"type"`
		Text string    `json:"text"`
	}{KindText, b.Text})
}

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  BlockKind       `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}{KindToolUse, b.ID, b.Name, nullIfEmpty(b.Input)})
}

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      BlockKind       `json:"type"`
		ToolUseID string          `json:"tool_use_id"`
		Content   json.RawMessage `json:"content"`
		IsError   bool            `json:"is_error"`
	}{KindToolResult, b.ToolUseID, nullIfEmpty(b.Content), b.IsError})
}

func (b OtherBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    BlockKind       `json:"type"`
		RawType string          `json:"raw_type,omitempty"`
		Raw     json.RawMessage `json:"raw"`
	}{KindOther, b.Type, nullIfEmpty(b.Raw)})
}

// Text flattens the result content: a plain string is returned as is, an
// array of blocks contributes the text of its text blocks, anything else
// is returned as raw JSON.
func (b ToolResultBlock) Text() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(b.Content, &s) == nil {
		return s
	}
	var parts []json.RawMessage
	if json.Unmarshal(b.Content, &parts) == nil {
		var texts []string
		for _, p := range parts {
			if tb, ok := classifyBlock(p).(TextBlock); ok {
				texts = append(texts, tb.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return string(b.Content)
}

// classifyBlock maps one element of message.content to a Block. It never
// fails: shapes that do not match their tag fall back to OtherBlock.
func classifyBlock(raw json.RawMessage) Block {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return OtherBlock{Raw: raw}
	}

	switch BlockKind(head.Type) {
	case KindText:
		var b struct {
			Text *string `json:"text"`
		}
		if json.Unmarshal(raw, &b) == nil && b.Text != nil {
			return TextBlock{Text: *b.Text}
		}
	case KindToolUse:
		var b struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if json.Unmarshal(raw, &b) == nil && b.Name != "" {
			return ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input}
		}
	case KindToolResult:
		var b struct {
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
			IsError   bool            `json:"is_error"`
		}
		if json.Unmarshal(raw, &b) == nil && b.ToolUseID != "" {
			return ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError}
		}
	}
	return OtherBlock{Type: head.Type, Raw: raw}
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
