// Package transcript parses agent log files (one JSON object per line) and
// projects them into conversation turns.
//
// The log is appended to by another process while it is being read, so a
// line may be observed half-written. Lines that do not decode are dropped
// individually; they never stop the scan or reorder the lines around them.
package transcript

import (
	"bytes"
	"encoding/json"
	"iter"
	"strings"
)

// Entry types that carry no conversation content.
var progressTypes = map[string]bool{
	"progress":  true,
	"heartbeat": true,
}

// IsProgressType reports whether entries of type t are progress/heartbeat
// records, hidden from the conversation view.
func IsProgressType(t string) bool { return progressTypes[t] }

// Entry is one decoded log line.
type Entry struct {
	Line   int                        // 1-based line number in the log text
	Type   string                     // top-level "type", empty when absent or not a string
	Fields map[string]json.RawMessage // every top-level field, including type and message
}

// IsProgress reports whether the entry is a progress/heartbeat record.
func (e Entry) IsProgress() bool { return IsProgressType(e.Type) }

// Raw re-encodes the entry as a JSON object.
func (e Entry) Raw() json.RawMessage {
	data, err := json.Marshal(e.Fields)
	if err != nil {
		return nil
	}
	return data
}

// Entries yields every decodable line of text in order. The sequence is
// lazy and can be ranged over any number of times.
func Entries(text string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		n := 0
		for line := range strings.Lines(text) {
			n++
			entry, ok := decodeLine(line, n)
			if !ok {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// ConversationEntries is Entries without progress/heartbeat records.
func ConversationEntries(text string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for e := range Entries(text) {
			if e.IsProgress() {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Parse collects Entries into a slice.
func Parse(text string) []Entry {
	var out []Entry
	for e := range Entries(text) {
		out = append(out, e)
	}
	return out
}

func decodeLine(line string, n int) (Entry, bool) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Entry{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Entry{}, false
	}

	e := Entry{Line: n, Fields: fields}
	if raw, ok := fields["type"]; ok {
		var t string
		if json.Unmarshal(raw, &t) == nil {
			e.Type = t
		}
	}
	return e, true
}
