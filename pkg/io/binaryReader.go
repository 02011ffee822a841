package io

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxArraySize is the maximum size of an array which can be decoded.
const MaxArraySize = 0x1000000

// ErrTooBig is set when a length prefix exceeds the allowed maximum.
var ErrTooBig = errors.New("byte-slice is too big")

// BinReader is a convenient wrapper around an io.Reader and err object.
// Used to simplify error handling when reading into a struct with many fields.
type BinReader struct {
	r   io.Reader
	uv  [8]byte
	Err error
}

// NewBinReaderFromIO makes a BinReader from io.Reader.
func NewBinReaderFromIO(ior io.Reader) *BinReader {
	return &BinReader{r: ior}
}

// NewBinReaderFromBuf makes a BinReader from a byte buffer.
func NewBinReaderFromBuf(b []byte) *BinReader {
	r := bytes.NewReader(b)
	return NewBinReaderFromIO(r)
}

// Len returns the number of bytes still available for reading if the reader
// was created from a buffer and -1 otherwise.
func (r *BinReader) Len() int {
	if br, ok := r.r.(*bytes.Reader); ok {
		return br.Len()
	}
	return -1
}

// ReadB reads a byte from the underlying io.Reader.
func (r *BinReader) ReadB() byte {
	r.ReadBytes(r.uv[:1])
	if r.Err != nil {
		return 0
	}
	return r.uv[0]
}

// ReadArray reads an array into a slice of decodable elements.
func ReadArray[E any, P interface {
	*E
	decodable
}](r *BinReader, maxSize ...int) []E {
	ms := MaxArraySize
	if len(maxSize) != 0 {
		ms = maxSize[0]
	}
	lu := r.ReadVarUint()
	if r.Err != nil {
		return nil
	}
	if lu > uint64(ms) {
		r.Err = fmt.Errorf("array is too big (%d)", lu)
		return nil
	}
	arr := make([]E, int(lu))
	for i := range arr {
		P(&arr[i]).DecodeBinary(r)
	}
	return arr
}

// ReadVarUint reads a variable-length-encoded integer from the
// underlying reader.
func (r *BinReader) ReadVarUint() uint64 {
	if r.Err != nil {
		return 0
	}

	var b = r.ReadB()

	if b == 0xfd {
		r.ReadBytes(r.uv[:2])
		return uint64(binary.LittleEndian.Uint16(r.uv[:2]))
	}
	if b == 0xfe {
		r.ReadBytes(r.uv[:4])
		return uint64(binary.LittleEndian.Uint32(r.uv[:4]))
	}
	if b == 0xff {
		r.ReadBytes(r.uv[:8])
		return binary.LittleEndian.Uint64(r.uv[:8])
	}

	return uint64(b)
}

// ReadVarBytes reads the next set of bytes from the underlying reader.
// ReadVarUInt() is used to determine how large that slice is.
func (r *BinReader) ReadVarBytes(maxSize ...int) []byte {
	n := r.ReadVarUint()
	ms := MaxArraySize
	if len(maxSize) != 0 {
		ms = maxSize[0]
	}
	if n > uint64(ms) {
		r.Err = fmt.Errorf("%w: %d", ErrTooBig, n)
		return nil
	}
	if r.Err != nil {
		return nil
	}
	b := make([]byte, n)
	r.ReadBytes(b)
	return b
}

// ReadBytes copies a fixed-size buffer from the reader to the provided slice.
func (r *BinReader) ReadBytes(buf []byte) {
	if r.Err != nil {
		return
	}

	_, r.Err = io.ReadFull(r.r, buf)
}
