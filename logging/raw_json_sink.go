package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/wetest/types"
)

// RawJSONSink writes every test's go test -json events to one file, in
// execution order. Tests skipped without running get a synthetic skip event.
// The file can be fed to tools like gotestsum that expect this format.
type RawJSONSink struct {
	path   string
	writer *AsyncFile

	// Raw output is kept on disk between Store and Consume.
	mu            sync.Mutex
	rawJSONEvents map[string]string // test id -> temp file path
}

// GoTestEvent represents an event in the go test JSON output
// Matches the format described in Go's test2json package
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test,omitempty"`
	Output  string    `json:"Output,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
}

// NewRawJSONSink creates the output file at path.
func NewRawJSONSink(path string) (*RawJSONSink, error) {
	if path == "" {
		return nil, fmt.Errorf("raw JSON output path cannot be empty")
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	return &RawJSONSink{
		path:          path,
		writer:        writer,
		rawJSONEvents: make(map[string]string),
	}, nil
}

// Path returns the output file path.
func (s *RawJSONSink) Path() string {
	return s.path
}

// Consume appends the stored events of the test to the output file.
func (s *RawJSONSink) Consume(result *types.TestResult) error {
	testID := result.Case.NodeID()
	path := s.takePath(testID)
	if path == "" {
		if result.Forced {
			return s.writeSkipEvents(result)
		}
		return nil
	}
	defer func() {
		_ = os.Remove(path)
	}()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open raw JSON file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := s.writer.WriteFrom(file); err != nil {
		return fmt.Errorf("failed to write raw JSON events: %w", err)
	}
	return nil
}

func (s *RawJSONSink) writeSkipEvents(result *types.TestResult) error {
	now := time.Now()
	name := result.Case.GoTestName()
	events := []GoTestEvent{
		{Time: now, Action: "run", Package: result.Case.Package, Test: name},
		{Time: now, Action: "output", Package: result.Case.Package, Test: name, Output: fmt.Sprintf("--- SKIP: %s (0.00s)\n", name)},
		{Time: now, Action: "output", Package: result.Case.Package, Test: name, Output: "    " + result.Reason + "\n"},
		{Time: now, Action: "skip", Package: result.Case.Package, Test: name},
	}
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return s.writer.Write([]byte(b.String()))
}

// Complete flushes and closes the output file.
func (s *RawJSONSink) Complete(types.RunSummary) error {
	return s.Close()
}

// Close closes the output file and drops any stored output that was never
// consumed. It is safe to call more than once.
func (s *RawJSONSink) Close() error {
	s.cleanupStoredFiles()
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close raw JSON output %s: %w", s.path, err)
	}
	return nil
}

// StoreRawJSON stores the raw JSON output for a test
func (s *RawJSONSink) StoreRawJSON(testID string, rawJSON []byte) error {
	if len(rawJSON) == 0 {
		return nil
	}
	return s.store(testID, func(w io.Writer) error {
		_, err := w.Write(rawJSON)
		return err
	})
}

// StoreRawJSONFromFile copies an existing file into the sink-managed storage.
func (s *RawJSONSink) StoreRawJSONFromFile(testID, sourcePath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open raw JSON source %s: %w", sourcePath, err)
	}
	defer func() {
		_ = src.Close()
	}()
	return s.store(testID, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

func (s *RawJSONSink) store(testID string, fill func(io.Writer) error) error {
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("raw-json-%s-", safeFilename(testID)))
	if err != nil {
		return fmt.Errorf("failed to create temp raw JSON file: %w", err)
	}
	if err := fill(tmpFile); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to write raw JSON: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to close raw JSON file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.rawJSONEvents[testID]; ok {
		_ = os.Remove(old)
	}
	s.rawJSONEvents[testID] = tmpFile.Name()
	return nil
}

func (s *RawJSONSink) takePath(testID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.rawJSONEvents[testID]
	delete(s.rawJSONEvents, testID)
	return path
}

func (s *RawJSONSink) cleanupStoredFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for testID, path := range s.rawJSONEvents {
		_ = os.Remove(path)
		delete(s.rawJSONEvents, testID)
	}
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	return strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	).Replace(s)
}
