package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// JSON encodes snapshots as indented JSON and WAL payloads as compact JSON.
type JSON[T any] struct {
	// Now stamps written documents. Nil uses time.Now.
	Now func() time.Time
}

func (c *JSON[T]) Extension() string { return ".json" }

func (c *JSON[T]) MarshalRecord(rec T) ([]byte, error) {
	return json.Marshal(rec)
}

func (c *JSON[T]) UnmarshalRecord(data []byte) (T, error) {
	var rec T

	err := json.Unmarshal(data, &rec)
	if err != nil {
		return rec, fmt.Errorf("json: %w", err)
	}

	return rec, nil
}

func (c *JSON[T]) MarshalDocument(records []T) ([]byte, error) {
	data, err := json.MarshalIndent(newEnvelope(c.Now, records), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	return append(data, '\n'), nil
}

func (c *JSON[T]) UnmarshalDocument(data []byte) ([]T, error) {
	var env envelope[T]

	dec := json.NewDecoder(bytes.NewReader(data))

	err := dec.Decode(&env)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	return env.Records, nil
}
