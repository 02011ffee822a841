package util

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/lrmpt/lrmpt/pkg/util/slice"
)

// Uint256Size is the size of Uint256 in bytes.
const Uint256Size = 32

// Uint256 is a 32 byte long unsigned integer used as a node and root hash.
// Bytes are kept in the order the hash function produced them.
type Uint256 [Uint256Size]uint8

// Uint256DecodeStringBE attempts to decode the given hex string (optionally
// 0x-prefixed) into an Uint256.
func Uint256DecodeStringBE(s string) (u Uint256, err error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != Uint256Size*2 {
		return u, fmt.Errorf("expected string size of %d got %d", Uint256Size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return u, err
	}
	return Uint256DecodeBytesBE(b)
}

// Uint256DecodeBytesBE attempts to decode the given bytes into an Uint256.
func Uint256DecodeBytesBE(b []byte) (u Uint256, err error) {
	if len(b) != Uint256Size {
		return u, fmt.Errorf("expected []byte of size %d got %d", Uint256Size, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// BytesBE returns a byte slice representation of u.
func (u Uint256) BytesBE() []byte {
	return slice.Copy(u[:])
}

// Equals returns true if both Uint256 values are the same.
func (u Uint256) Equals(other Uint256) bool {
	return u == other
}

// IsZero tells whether u is the all-zero hash denoting an empty trie.
func (u Uint256) IsZero() bool {
	return u == Uint256{}
}

// Compare performs three-way comparison of two Uint256.
func (u Uint256) Compare(other Uint256) int {
	return bytes.Compare(u[:], other[:])
}

// String implements the stringer interface.
func (u Uint256) String() string {
	return u.StringBE()
}

// StringBE produces a hex string of u without any prefix.
func (u Uint256) StringBE() string {
	return hex.EncodeToString(u[:])
}

// UnmarshalJSON implements the json unmarshaller interface.
func (u *Uint256) UnmarshalJSON(data []byte) (err error) {
	var js string
	if err = json.Unmarshal(data, &js); err != nil {
		return err
	}
	*u, err = Uint256DecodeStringBE(js)
	return err
}

// MarshalJSON implements the json marshaller interface.
func (u Uint256) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + u.StringBE() + `"`), nil
}

// EncodeBinary implements the io.Serializable interface.
func (u *Uint256) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(u[:])
}

// DecodeBinary implements the io.Serializable interface.
func (u *Uint256) DecodeBinary(r *io.BinReader) {
	r.ReadBytes(u[:])
}
