// Package diag keeps the most recent log entries in memory so they can be
// dumped after a failed connection, whatever the console log level was.
package diag

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// MaxBufferSize sets an upper limit on the buffer size to guard against accidental misconfiguration.
const MaxBufferSize uint32 = 64 * 1024

// Record is a captured log entry.
type Record struct {
	Time    time.Time
	Level   logrus.Level
	Message string
	Fields  logrus.Fields
}

// String renders the record on one line with fields in key order.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, r.Fields[k])
	}
	return b.String()
}

// Metrics provides lock-free counters for a Hook.
type Metrics struct {
	RecordsProcessed   int64
	ErrorsOccurred     int64
	RecordsOverwritten int64
}

// Hook is a logrus hook buffering the most recent entries.
//
// All methods are thread-safe.
type Hook struct {
	buffer  mpmc.RichOverlappedRingBuffer[Record]
	levels  []logrus.Level
	metrics Metrics
}

var _ logrus.Hook = (*Hook)(nil)

// NewHook creates a hook keeping about size entries at minLevel or more severe.
func NewHook(size uint32, minLevel logrus.Level) (*Hook, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if size > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", size, MaxBufferSize)
	}

	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &Hook{
		buffer: mpmc.NewOverlappedRingBuffer[Record](size),
		levels: levels,
	}, nil
}

// Attach creates a hook and registers it on logger.
func Attach(logger *logrus.Logger, size uint32) (*Hook, error) {
	h, err := NewHook(size, logrus.TraceLevel)
	if err != nil {
		return nil, err
	}
	logger.AddHook(h)
	return h, nil
}

func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	fields := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}

	overwrites, err := h.buffer.EnqueueM(Record{
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
		Fields:  fields,
	})
	if err != nil {
		atomic.AddInt64(&h.metrics.ErrorsOccurred, 1)
		return fmt.Errorf("unexpected buffer.Enqueue error: %w", err)
	}
	atomic.AddInt64(&h.metrics.RecordsOverwritten, int64(overwrites))
	atomic.AddInt64(&h.metrics.RecordsProcessed, 1)
	return nil
}

// GetMetrics returns a copy of the current metrics
func (h *Hook) GetMetrics() Metrics {
	return Metrics{
		RecordsProcessed:   atomic.LoadInt64(&h.metrics.RecordsProcessed),
		ErrorsOccurred:     atomic.LoadInt64(&h.metrics.ErrorsOccurred),
		RecordsOverwritten: atomic.LoadInt64(&h.metrics.RecordsOverwritten),
	}
}

// ConsumerFunc consumes buffered records.
//
// Protocol:
// - If record != nil: process it. Return the zero value to continue, or a
// non-zero result to stop early.
// - If record == nil: no more records will be provided. Return the final result.
type ConsumerFunc[T any] func(record *Record) (T, error)

// PlainTextConsumerFunc returns a ConsumerFunc joining records, one per line.
func PlainTextConsumerFunc() ConsumerFunc[string] {
	var buffer strings.Builder
	return func(record *Record) (string, error) {
		if record == nil {
			return buffer.String(), nil
		}
		buffer.WriteString(record.String())
		buffer.WriteByte('\n')
		return "", nil
	}
}

// ConsumeRecords drains the buffer into consumer, oldest first.
func ConsumeRecords[T any](h *Hook, consumer ConsumerFunc[T]) (T, error) {
	for !h.buffer.IsEmpty() {
		rec, err := h.buffer.Dequeue()
		if err != nil {
			var zero T
			return zero, fmt.Errorf("buffer dequeue error: %w", err)
		}

		result, err := consumer(&rec)
		if err != nil {
			return result, err
		}
		if !isZeroValue(result) {
			return result, nil
		}
	}
	return consumer(nil)
}

func isZeroValue[T any](v T) bool {
	var zero T
	return reflect.DeepEqual(v, zero)
}

// Dump drains the buffer to w as plain text.
func (h *Hook) Dump(w io.Writer) error {
	text, err := ConsumeRecords(h, PlainTextConsumerFunc())
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}
