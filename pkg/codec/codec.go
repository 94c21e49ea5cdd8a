// Package codec serializes walstore collections.
//
// Every codec writes snapshot documents as an envelope carrying a notice that
// the file is generated, the time of the write and the records:
//
//	{"comment": Notice, "written_at": <RFC 3339>, "records": [...]}
//
// WAL payloads are the bare record encoding.
package codec

import (
	"fmt"
	"time"
)

// Notice is written into every snapshot document.
const Notice = "This file was generated automatically - do NOT modify!"

// Codec is the union of walstore.RecordCodec and walstore.DocumentCodec
// plus the file extension of its documents.
type Codec[T any] interface {
	MarshalRecord(rec T) ([]byte, error)
	UnmarshalRecord(data []byte) (T, error)
	MarshalDocument(records []T) ([]byte, error)
	UnmarshalDocument(data []byte) ([]T, error)
	Extension() string
}

// Names of the available codecs.
const (
	NameJSON    = "json"
	NameYAML    = "yaml"
	NameMsgpack = "msgpack"
)

// Names returns the accepted codec names.
func Names() []string {
	return []string{NameJSON, NameYAML, NameMsgpack}
}

// New returns the codec called name. A nil now uses time.Now.
func New[T any](name string, now func() time.Time) (Codec[T], error) {
	switch name {
	case NameJSON, "":
		return &JSON[T]{Now: now}, nil
	case NameYAML:
		return &YAML[T]{Now: now}, nil
	case NameMsgpack:
		return &Msgpack[T]{Now: now}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (valid: %v)", name, Names())
	}
}

type envelope[T any] struct {
	Comment   string    `json:"comment"    yaml:"comment"    msgpack:"comment"`
	WrittenAt time.Time `json:"written_at" yaml:"written_at" msgpack:"written_at"`
	Records   []T       `json:"records"    yaml:"records"    msgpack:"records"`
}

func newEnvelope[T any](now func() time.Time, records []T) envelope[T] {
	if now == nil {
		now = time.Now
	}

	if records == nil {
		records = []T{}
	}

	return envelope[T]{
		Comment:   Notice,
		WrittenAt: now().UTC().Truncate(time.Second),
		Records:   records,
	}
}
