package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Activity is one line of the JSONL activity log.
type Activity struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	AmountSOL float64   `json:"amount_sol,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Recorder appends activity entries as JSON lines for later analysis.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewRecorder creates/opens the target file and returns a recorder.
func NewRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single entry, stamping it if the caller did not.
func (r *Recorder) Record(a Activity) {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(a)
}

// TxUpdate lets the recorder sit on the engine's notifier hook so every
// status change lands in the activity log.
func (r *Recorder) TxUpdate(_ context.Context, kind, status, signature string, amountSOL float64) {
	r.Record(Activity{Kind: kind, Status: status, Signature: signature, AmountSOL: amountSOL})
}

// Close flushes and closes the file handle.
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
