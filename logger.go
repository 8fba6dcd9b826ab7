package tastebalance

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EstimationLogger records every round-trip to the estimator.
type EstimationLogger interface {
	LogEstimation(entry EstimationLog) error
}

// NewEstimationLogFilePath returns a timestamped path so runs against different backends are easy to tell apart.
func NewEstimationLogFilePath(backend string) string {
	return fmt.Sprintf("./logs/%d.%s.json", time.Now().Unix(), backend)
}

// EstimationLog represents a single estimator call
type EstimationLog struct {
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	Tier      string        `json:"tier"`
	Input     string        `json:"input,omitempty"`
	Output    string        `json:"output,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// FileEstimationLogger accumulates entries and writes them out on Flush
type FileEstimationLogger struct {
	mu      sync.Mutex
	entries []EstimationLog
	writer  io.Writer
}

func NewFileEstimationLogger(writer io.Writer) *FileEstimationLogger {
	return &FileEstimationLogger{
		entries: make([]EstimationLog, 0),
		writer:  writer,
	}
}

// LogEstimation buffers the entry (does not flush immediately)
func (l *FileEstimationLogger) LogEstimation(entry EstimationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Flush writes all buffered entries to the writer
func (l *FileEstimationLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"estimations": map[string]any{
			"timestamp": time.Now(),
			"entries":   l.entries,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal estimation log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write estimation log: %w", err)
	}

	l.entries = l.entries[:0]
	return nil
}

type NoOpEstimationLogger struct{}

func NewNoOpEstimationLogger() *NoOpEstimationLogger {
	return &NoOpEstimationLogger{}
}

func (nop *NoOpEstimationLogger) LogEstimation(entry EstimationLog) error {
	return nil
}

// StdoutEstimationLogger writes each entry as a JSON line (for Lambda/CloudWatch)
type StdoutEstimationLogger struct {
	out io.Writer
}

func NewStdoutEstimationLogger() *StdoutEstimationLogger {
	return &StdoutEstimationLogger{out: os.Stdout}
}

func (l *StdoutEstimationLogger) LogEstimation(entry EstimationLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	fmt.Fprintln(l.out, string(data))
	return nil
}
