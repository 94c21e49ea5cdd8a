package codec

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// YAML encodes snapshots and WAL payloads as YAML.
type YAML[T any] struct {
	Now func() time.Time
}

func (c *YAML[T]) Extension() string { return ".yaml" }

func (c *YAML[T]) MarshalRecord(rec T) ([]byte, error) {
	return yaml.Marshal(rec)
}

func (c *YAML[T]) UnmarshalRecord(data []byte) (T, error) {
	var rec T

	err := yaml.Unmarshal(data, &rec)
	if err != nil {
		return rec, fmt.Errorf("yaml: %w", err)
	}

	return rec, nil
}

func (c *YAML[T]) MarshalDocument(records []T) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	err := enc.Encode(newEnvelope(c.Now, records))
	if err == nil {
		err = enc.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *YAML[T]) UnmarshalDocument(data []byte) ([]T, error) {
	var env envelope[T]

	err := yaml.Unmarshal(data, &env)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}

	if env.Comment == "" && env.Records == nil {
		return nil, fmt.Errorf("yaml: document has no records section")
	}

	return env.Records, nil
}
