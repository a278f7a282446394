// Package vector implements the single-file persistent vector index: a
// fixed 64-byte header, a JSON metadata region, and a serialized HNSW graph
// region, written atomically and loaded via mmap.
package vector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerSize    = 64
	formatVersion = 1
)

var magicBytes = []byte{'M', 'D', 'V', 'D', 'B', 0}

var (
	// ErrIndexNotFound is returned when the index file does not exist.
	ErrIndexNotFound = errors.New("vector index not found")
	// ErrIndexCorrupted is returned when the index file fails structural
	// validation (bad magic, unsupported version, truncated regions).
	ErrIndexCorrupted = errors.New("vector index corrupted")
	// ErrEmbeddingConfigMismatch is returned by Open when the stored
	// embedding configuration differs from the requested one. The store is
	// still returned; the caller decides whether to rebuild.
	ErrEmbeddingConfigMismatch = errors.New("index embedding configuration mismatch")
)

// header describes where the metadata and graph regions live in the file.
type header struct {
	metaOffset uint64
	metaSize   uint64
	hnswOffset uint64
	hnswSize   uint64
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:6], magicBytes)
	binary.LittleEndian.PutUint32(buf[6:10], formatVersion)
	binary.LittleEndian.PutUint64(buf[10:18], h.metaOffset)
	binary.LittleEndian.PutUint64(buf[18:26], h.metaSize)
	binary.LittleEndian.PutUint64(buf[26:34], h.hnswOffset)
	binary.LittleEndian.PutUint64(buf[34:42], h.hnswSize)
	return buf
}

// decodeHeader validates the fixed header and checks that both regions fit
// inside a file of fileSize bytes.
func decodeHeader(buf []byte, fileSize uint64) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("%w: file smaller than header (%d bytes)", ErrIndexCorrupted, len(buf))
	}
	if !bytes.Equal(buf[0:6], magicBytes) {
		return header{}, fmt.Errorf("%w: bad magic", ErrIndexCorrupted)
	}
	if v := binary.LittleEndian.Uint32(buf[6:10]); v != formatVersion {
		return header{}, fmt.Errorf("%w: unsupported format version %d", ErrIndexCorrupted, v)
	}
	h := header{
		metaOffset: binary.LittleEndian.Uint64(buf[10:18]),
		metaSize:   binary.LittleEndian.Uint64(buf[18:26]),
		hnswOffset: binary.LittleEndian.Uint64(buf[26:34]),
		hnswSize:   binary.LittleEndian.Uint64(buf[34:42]),
	}
	if h.metaOffset < headerSize || h.metaOffset+h.metaSize > fileSize {
		return header{}, fmt.Errorf("%w: metadata region out of bounds", ErrIndexCorrupted)
	}
	if h.hnswOffset < headerSize || h.hnswOffset+h.hnswSize > fileSize {
		return header{}, fmt.Errorf("%w: graph region out of bounds", ErrIndexCorrupted)
	}
	return h, nil
}
