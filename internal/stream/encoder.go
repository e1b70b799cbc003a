package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Encode wraps payload in the push-event wire format: "data: <json>\n\n".
// encoding/json emits compact single-line output, so the payload never
// breaks the event framing.
func Encode(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return fmt.Appendf(nil, "data: %s\n\n", data), nil
}

// LogPayload is the log-stream event body.
type LogPayload struct {
	Content string `json:"content"`
}

// Sink receives encoded events.
type Sink interface {
	Write(p []byte) (int, error)
	Flush() error
}

type httpSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewHTTPSink prepares w for an event stream and returns it as a Sink. The
// status line goes out with the first event, so a caller can still reply
// with an error if the stream fails to open.
func NewHTTPSink(w http.ResponseWriter) Sink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &httpSink{w: w, rc: http.NewResponseController(w)}
}

func (s *httpSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *httpSink) Flush() error { return s.rc.Flush() }
