package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// StreamProvider is an optional interface. Providers may implement streaming chat.
// The chunk channel is closed when the stream ends; the error channel carries
// at most one error and is closed as well.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

type sseDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeSSE reads OpenAI style server-sent events from r and calls emit for
// every non-empty delta. It returns nil on the [DONE] sentinel or EOF.
// Payloads that are not valid JSON are skipped. An in-stream error payload
// ends decoding with a *ResponseError carrying that payload. emit returning
// false stops decoding (the consumer went away).
func DecodeSSE(r io.Reader, emit func(delta string) bool) error {
	sc := bufio.NewScanner(r)
	// Increase scanner buffer for long JSON lines.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if data == sseDone {
			return nil
		}

		var decoded sseDelta
		if err := json.Unmarshal([]byte(data), &decoded); err != nil {
			continue
		}
		if decoded.Error != nil {
			return &ResponseError{Raw: data}
		}
		if len(decoded.Choices) == 0 {
			continue
		}
		if delta := decoded.Choices[0].Delta.Content; delta != "" {
			if !emit(delta) {
				return nil
			}
		}
	}
	return sc.Err()
}

// sendChunk delivers c unless ctx is done first.
func sendChunk(ctx context.Context, out chan<- string, c string) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
