package runner

import "github.com/ethereum-optimism/infra/wetest/logging"

var _ JSONStore = (*jsonStore)(nil)

// jsonStore implements JSONStore on top of the raw JSON sink
type jsonStore struct {
	rawJSONSink *logging.RawJSONSink
}

// NewJSONStore creates a new JSON store. With a nil sink nothing is stored.
func NewJSONStore(sink *logging.RawJSONSink) JSONStore {
	return &jsonStore{rawJSONSink: sink}
}

// Store stores raw JSON output for a test
func (s *jsonStore) Store(testID string, rawJSON []byte) error {
	if len(rawJSON) == 0 || s.rawJSONSink == nil {
		return nil
	}
	return s.rawJSONSink.StoreRawJSON(testID, rawJSON)
}

// StoreFromFile copies raw JSON from an existing file path
func (s *jsonStore) StoreFromFile(testID, path string) error {
	if s.rawJSONSink == nil {
		return nil
	}
	return s.rawJSONSink.StoreRawJSONFromFile(testID, path)
}
