package observe

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// JSONLWriter appends every metric event as one JSON line to a zstd stream.
// The stream is finalized on end-of-stream; write errors are logged once and
// later events are dropped.
type JSONLWriter struct {
	runID string

	mu     sync.Mutex
	closer io.Closer
	enc    *zstd.Encoder
	w      *bufio.Writer
	err    error
	closed bool
}

// NewJSONLWriter compresses into w. If w is an io.Closer it is closed
// together with the writer.
func NewJSONLWriter(w io.Writer, runID string) (*JSONLWriter, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	jw := &JSONLWriter{runID: runID, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}
	if c, ok := w.(io.Closer); ok {
		jw.closer = c
	}
	return jw, nil
}

// CreateJSONLFile creates (or truncates) path, including parent directories.
func CreateJSONLFile(path, runID string) (*JSONLWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	jw, err := NewJSONLWriter(f, runID)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return jw, nil
}

// Write appends v as one JSON line.
func (w *JSONLWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("jsonl writer is closed")
	}
	if w.err != nil {
		return w.err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = err
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *JSONLWriter) OnMetricEvent(m sim.MetricEvent) {
	w.mu.Lock()
	failed := w.err != nil
	w.mu.Unlock()
	if failed {
		return
	}
	if err := w.Write(NewRecord(w.runID, m)); err != nil {
		logrus.Errorf("Writing metric record: %v", err)
	}
}

func (w *JSONLWriter) OnSimulationEnd() {
	if err := w.Close(); err != nil {
		logrus.Errorf("Closing metric log: %v", err)
	}
}

// Close flushes buffered records and finalizes the zstd frame. It is idempotent.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	if err := w.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.enc.Close(); err != nil {
		errs = append(errs, err)
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadJSONL decodes every record of a zstd-compressed JSONL stream.
func ReadJSONL(r io.Reader) ([]Record, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var out []Record
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("decoding record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}
