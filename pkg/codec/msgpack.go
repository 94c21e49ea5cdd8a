package codec

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack encodes snapshots and WAL payloads as MessagePack.
type Msgpack[T any] struct {
	Now func() time.Time
}

func (c *Msgpack[T]) Extension() string { return ".msgpack" }

func (c *Msgpack[T]) MarshalRecord(rec T) ([]byte, error) {
	return msgpack.Marshal(rec)
}

func (c *Msgpack[T]) UnmarshalRecord(data []byte) (T, error) {
	var rec T

	err := msgpack.Unmarshal(data, &rec)
	if err != nil {
		return rec, fmt.Errorf("msgpack: %w", err)
	}

	return rec, nil
}

func (c *Msgpack[T]) MarshalDocument(records []T) ([]byte, error) {
	data, err := msgpack.Marshal(newEnvelope(c.Now, records))
	if err != nil {
		return nil, fmt.Errorf("msgpack: %w", err)
	}

	return data, nil
}

func (c *Msgpack[T]) UnmarshalDocument(data []byte) ([]T, error) {
	var env envelope[T]

	err := msgpack.Unmarshal(data, &env)
	if err != nil {
		return nil, fmt.Errorf("msgpack: %w", err)
	}

	return env.Records, nil
}
