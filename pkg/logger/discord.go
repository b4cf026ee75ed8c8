package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const discordMessageLimit = 2000

// DiscordWriter forwards warn and error events to a Discord webhook.
// It is a zerolog.LevelWriter so it sees every field of the event.
// Delivery is asynchronous and failures are dropped.
type DiscordWriter struct {
	url    string
	client *http.Client
	send   func(payload []byte)
}

// NewDiscordWriter creates a writer posting to the given webhook URL.
func NewDiscordWriter(url string) *DiscordWriter {
	w := &DiscordWriter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	w.send = func(payload []byte) {
		go w.post(payload)
	}
	return w
}

// Write drops events without a level.
func (w *DiscordWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter.
func (w *DiscordWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel || level > zerolog.PanicLevel {
		return len(p), nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}

	payload, err := json.Marshal(map[string]string{"content": formatDiscordMessage(level, fields)})
	if err != nil {
		return len(p), nil
	}
	w.send(payload)
	return len(p), nil
}

func (w *DiscordWriter) post(payload []byte) {
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return
	}
	resp.Body.Close()
}

// formatDiscordMessage renders "**level** [component] message: error".
func formatDiscordMessage(level zerolog.Level, fields map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", level.String())
	if component, ok := fields["component"].(string); ok && component != "" {
		fmt.Fprintf(&b, " [%s]", component)
	}
	if msg, ok := fields[zerolog.MessageFieldName].(string); ok && msg != "" {
		b.WriteString(" " + msg)
	}
	if errMsg, ok := fields[zerolog.ErrorFieldName].(string); ok && errMsg != "" {
		b.WriteString(": " + errMsg)
	}

	content := b.String()
	if len(content) > discordMessageLimit {
		content = content[:discordMessageLimit]
	}
	return content
}
