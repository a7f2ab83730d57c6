package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Exchange is one recorded request/response pair, written as a JSON line
// for offline comparison and replay.
type Exchange struct {
	SessionID  string          `json:"session_id"`
	Target     string          `json:"target"`
	Method     string          `json:"method"`
	Request    json.RawMessage `json:"request"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	Divergence string          `json:"divergence,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Recorder appends exchanges to a JSON-lines file. Safe for concurrent use.
type Recorder struct {
	log logrus.FieldLogger

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewRecorder opens (appending) the recording sink.
func NewRecorder(log logrus.FieldLogger, path string) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G302/G304: recording path from operator config
	if err != nil {
		return nil, fmt.Errorf("opening recording sink: %w", err)
	}

	return &Recorder{
		log:  log.WithField("component", "proxy_recorder"),
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record appends one exchange.
func (r *Recorder) Record(exchange *Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.Encode(exchange); err != nil {
		r.log.WithError(err).Warn("failed to record exchange")
	}
}

// Close flushes and closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil

	return err
}
