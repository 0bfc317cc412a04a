package bloom

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Algorithm names the hash scheme recorded in serialized filters.
const Algorithm = "murmur3_128"

// headerSize is numBits, numHashes and count as little-endian uint64s.
const headerSize = 24

// Encoded is a filter in the JSON form written to snapshot sidecars. Data
// is base64 of the header followed by the snappy-compressed bit array.
type Encoded struct {
	Algorithm string `json:"algorithm"`
	NumBits   int    `json:"num_bits"`
	NumHashes int    `json:"num_hashes"`
	Count     uint64 `json:"count"`
	Data      string `json:"data"`
}

// MarshalBinary serializes the filter as a 24-byte header followed by the
// snappy-compressed bit array.
func (f *Filter) MarshalBinary() ([]byte, error) {
	bitData := make([]byte, len(f.bits)*8)
	for i, word := range f.bits {
		binary.LittleEndian.PutUint64(bitData[i*8:], word)
	}
	compressed := snappy.Encode(nil, bitData)

	buf := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint64(buf[0:8], f.numBits)
	binary.LittleEndian.PutUint64(buf[8:16], f.numHashes)
	binary.LittleEndian.PutUint64(buf[16:24], f.count)
	copy(buf[headerSize:], compressed)
	return buf, nil
}

// UnmarshalBinary restores a filter written by MarshalBinary.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return errors.New("bloom: serialized data too short")
	}

	numBits := binary.LittleEndian.Uint64(data[0:8])
	numHashes := binary.LittleEndian.Uint64(data[8:16])
	count := binary.LittleEndian.Uint64(data[16:24])
	if numBits == 0 || numBits%64 != 0 || numHashes == 0 {
		return errors.New("bloom: invalid filter parameters")
	}

	bitData, err := snappy.Decode(nil, data[headerSize:])
	if err != nil {
		return fmt.Errorf("bloom: snappy decompress failed: %w", err)
	}
	numWords := numBits / 64
	if uint64(len(bitData)) != numWords*8 {
		return fmt.Errorf("bloom: expected %d bit bytes, got %d", numWords*8, len(bitData))
	}

	bits := make([]uint64, numWords)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(bitData[i*8:])
	}

	f.bits = bits
	f.numBits = numBits
	f.numHashes = numHashes
	f.count = count
	return nil
}

// Encode converts the filter to its sidecar form.
func (f *Filter) Encode() (*Encoded, error) {
	data, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Encoded{
		Algorithm: Algorithm,
		NumBits:   int(f.numBits),
		NumHashes: int(f.numHashes),
		Count:     f.count,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Decode restores a filter from its sidecar form.
func Decode(e *Encoded) (*Filter, error) {
	if e == nil {
		return nil, errors.New("bloom: nil encoded filter")
	}
	if e.Algorithm != Algorithm {
		return nil, fmt.Errorf("bloom: unsupported algorithm %q", e.Algorithm)
	}
	data, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("bloom: invalid base64 data: %w", err)
	}
	f := &Filter{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return f, nil
}
