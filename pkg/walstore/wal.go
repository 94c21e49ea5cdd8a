package walstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAL frame layout, all integers big-endian:
//
//	frame  := string(tag) u32(count) count*string(record)
//	string := u32(len) len*byte
//
// tag is one of "create", "update", "delete". A record is the
// RecordCodec payload of one element.

const (
	walSuffix = ".wal"

	// maxWALString bounds a single length field. Anything larger is garbage.
	maxWALString = 1 << 28
)

// errTornFrame marks a frame cut short by EOF, the expected shape of a crash
// in the middle of an append.
var errTornFrame = errors.New("torn wal frame")

func walPathFor(snapshotPath string) string {
	return snapshotPath + walSuffix
}

func encodeFrame(buf *bytes.Buffer, action Action, records [][]byte) {
	writeString(buf, []byte(action.String()))

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(records)))
	buf.Write(n[:])

	for _, rec := range records {
		writeString(buf, rec)
	}
}

func writeString(buf *bytes.Buffer, s []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.Write(s)
}

type walFrame struct {
	action  Action
	records [][]byte
}

type walReader struct {
	r *bufio.Reader
}

func newWALReader(r io.Reader) *walReader {
	return &walReader{r: bufio.NewReader(r)}
}

// next returns the next frame. io.EOF means the log ended at a frame
// boundary; errTornFrame means it ended inside a frame.
func (w *walReader) next() (walFrame, error) {
	if _, err := w.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return walFrame{}, io.EOF
		}

		return walFrame{}, err
	}

	tag, err := w.readString()
	if err != nil {
		return walFrame{}, err
	}

	action, err := parseAction(string(tag))
	if err != nil {
		return walFrame{}, err
	}

	count, err := w.readUint32()
	if err != nil {
		return walFrame{}, err
	}

	if count > maxWALString {
		return walFrame{}, fmt.Errorf("%w: record count %d", ErrWALCorrupt, count)
	}

	records := make([][]byte, 0, min(count, 1024))

	for range count {
		rec, err := w.readString()
		if err != nil {
			return walFrame{}, err
		}

		records = append(records, rec)
	}

	return walFrame{action: action, records: records}, nil
}

func (w *walReader) readUint32() (uint32, error) {
	var n [4]byte

	_, err := io.ReadFull(w.r, n[:])
	if err != nil {
		return 0, torn(err)
	}

	return binary.BigEndian.Uint32(n[:]), nil
}

func (w *walReader) readString() ([]byte, error) {
	n, err := w.readUint32()
	if err != nil {
		return nil, err
	}

	if n > maxWALString {
		return nil, fmt.Errorf("%w: length %d", ErrWALCorrupt, n)
	}

	s := make([]byte, n)

	_, err = io.ReadFull(w.r, s)
	if err != nil {
		return nil, torn(err)
	}

	return s, nil
}

// torn maps any EOF inside a frame to errTornFrame.
func torn(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", errTornFrame, io.ErrUnexpectedEOF)
	}

	return err
}
