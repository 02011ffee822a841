/*
Package testserdes contains serialization round-trip helpers for tests.
*/
package testserdes

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/stretchr/testify/require"
)

// MarshalUnmarshalJSON checks that expected survives a JSON round trip into
// actual.
func MarshalUnmarshalJSON(t *testing.T, expected, actual any) {
	data, err := json.Marshal(expected)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, actual))
	require.Equal(t, expected, actual)
}

// EncodeDecodeBinary checks that expected survives a binary round trip into
// actual and that encoding is deterministic.
func EncodeDecodeBinary(t *testing.T, expected, actual io.Serializable) {
	data, err := EncodeBinary(expected)
	require.NoError(t, err)
	require.NoError(t, DecodeBinary(data, actual))
	require.Equal(t, expected, actual)

	again, err := EncodeBinary(actual)
	require.NoError(t, err)
	require.Equal(t, data, again)
}

// EncodeBinary serializes a into a new byte slice.
func EncodeBinary(a io.Serializable) ([]byte, error) {
	w := io.NewBufBinWriter()
	a.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return nil, w.Err
	}
	return w.Bytes(), nil
}

// DecodeBinary deserializes a from data. Unlike plain decoding it fails if
// data has any trailing bytes.
func DecodeBinary(data []byte, a io.Serializable) error {
	r := io.NewBinReaderFromBuf(data)
	a.DecodeBinary(r)
	if r.Err != nil {
		return r.Err
	}
	if n := r.Len(); n != 0 {
		return fmt.Errorf("%d trailing bytes", n)
	}
	return nil
}
