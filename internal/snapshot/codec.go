// Package snapshot persists the rows of a pipeline stage as columnar,
// checksummed files so later stages can be rerun without refetching.
//
// File layout:
//
//	magic "ESNP"
//	frame(header JSON)
//	frame(snappy(JSON column values)) for each column, in schema order
//
// where frame(p) is [len(p) uint32][crc32(p) uint32][p], little-endian.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"slices"
	"time"

	"github.com/golang/snappy"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
	"github.com/eventstar/eventstar/pkg/types"
)

var magic = [4]byte{'E', 'S', 'N', 'P'}

// maxFrameSize bounds a single frame so a corrupt length cannot trigger a
// huge allocation.
const maxFrameSize = 1 << 30

// Header describes a snapshot file.
type Header struct {
	Stage         string   `json:"stage"`
	SchemaVersion int      `json:"schema_version"`
	ExecutionID   string   `json:"execution_id"`
	RowCount      int      `json:"row_count"`
	Columns       []string `json:"columns"`
	CreatedAt     int64    `json:"created_at"`
}

// Codec reads and writes the snapshot of one stage whose rows are T.
type Codec[T any] struct {
	stage     types.Stage
	columns   []column[T]
	visitorOf func(T) string
	timeOf    func(T) time.Time
}

// Raw is the codec of the raw stage.
var Raw = Codec[types.RawEvent]{
	stage:     types.StageRaw,
	columns:   rawColumns,
	visitorOf: func(r types.RawEvent) string { return r.VisitorID },
	timeOf:    func(r types.RawEvent) time.Time { return r.Time },
}

// Preprocess is the codec of the preprocess stage.
var Preprocess = Codec[types.ReconciledEvent]{
	stage:     types.StagePreprocess,
	columns:   preprocessColumns,
	visitorOf: func(r types.ReconciledEvent) string { return r.VisitorID },
	timeOf:    func(r types.ReconciledEvent) time.Time { return r.Time },
}

// Stage returns the stage the codec handles.
func (c Codec[T]) Stage() types.Stage {
	return c.stage
}

func (c Codec[T]) columnNames() []string {
	names := make([]string, len(c.columns))
	for i, col := range c.columns {
		names[i] = col.name
	}
	return names
}

// Encode writes rows as a snapshot of the codec's stage.
func (c Codec[T]) Encode(w io.Writer, executionID string, rows []T) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}

	header, err := json.Marshal(Header{
		Stage:         c.stage.Name(),
		SchemaVersion: c.stage.Schema().Version,
		ExecutionID:   executionID,
		RowCount:      len(rows),
		Columns:       c.columnNames(),
		CreatedAt:     time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("snapshot: marshal header: %w", err)
	}
	if err := writeFrame(bw, header); err != nil {
		return err
	}

	for _, col := range c.columns {
		data, err := col.encode(rows)
		if err != nil {
			return fmt.Errorf("snapshot: encode column %s: %w", col.name, err)
		}
		if err := writeFrame(bw, snappy.Encode(nil, data)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads a snapshot written by Encode. A checksum or framing failure
// returns SNAPSHOT/CORRUPT_SNAPSHOT; a snapshot of another stage or schema
// returns SNAPSHOT/SCHEMA_MISMATCH.
func (c Codec[T]) Decode(r io.Reader) (*Header, []T, error) {
	br := bufio.NewReader(r)

	var m [4]byte
	if _, err := io.ReadFull(br, m[:]); err != nil || m != magic {
		return nil, nil, corrupt("missing snapshot magic", err)
	}

	payload, err := readFrame(br)
	if err != nil {
		return nil, nil, err
	}
	var h Header
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, nil, corrupt("invalid header", err)
	}
	if err := c.check(&h); err != nil {
		return nil, nil, err
	}

	rows := make([]T, h.RowCount)
	for _, col := range c.columns {
		payload, err := readFrame(br)
		if err != nil {
			return nil, nil, err
		}
		data, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, nil, corrupt("column "+col.name+" does not decompress", err)
		}
		if err := col.decode(data, rows); err != nil {
			return nil, nil, corrupt("column "+col.name+" is invalid", err)
		}
	}
	return &h, rows, nil
}

func (c Codec[T]) check(h *Header) error {
	schema := c.stage.Schema()
	switch {
	case h.Stage != c.stage.Name():
		return mismatch(fmt.Sprintf("snapshot is stage %q, want %q", h.Stage, c.stage.Name()))
	case h.SchemaVersion != schema.Version:
		return mismatch(fmt.Sprintf("snapshot schema version %d, want %d", h.SchemaVersion, schema.Version))
	case !slices.Equal(h.Columns, c.columnNames()):
		return mismatch(fmt.Sprintf("snapshot columns %v, want %v", h.Columns, c.columnNames()))
	case h.RowCount < 0:
		return corrupt("negative row count", nil)
	}
	return nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], crc32.ChecksumIEEE(payload))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, corrupt("truncated frame header", err)
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	crc := binary.LittleEndian.Uint32(hdr[4:8])
	if length > maxFrameSize {
		return nil, corrupt(fmt.Sprintf("frame length %d exceeds limit", length), nil)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, corrupt("truncated frame", err)
	}
	if computed := crc32.ChecksumIEEE(payload); computed != crc {
		return nil, corrupt(fmt.Sprintf("crc mismatch: stored %08x, computed %08x", crc, computed), nil)
	}
	return payload, nil
}

func corrupt(msg string, cause error) error {
	return pipelineerrors.NewSnapshotError(pipelineerrors.CodeCorruptSnapshot, msg, cause)
}

func mismatch(msg string) error {
	return pipelineerrors.NewSnapshotError(pipelineerrors.CodeSchemaMismatch, msg, nil)
}

// encodeBytes is Encode into memory.
func (c Codec[T]) encodeBytes(executionID string, rows []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, executionID, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
