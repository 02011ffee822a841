/*
Package hash contains the hash functions used to identify trie nodes.
*/
package hash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/lrmpt/lrmpt/pkg/util"
	"github.com/minio/blake2b-simd"
	"golang.org/x/crypto/sha3"
)

// Func computes a node identifier from its canonical encoding. It must be
// deterministic and collision resistant.
type Func func(data []byte) util.Uint256

// Names of the supported hash functions as used in configuration.
const (
	DoubleSha256Name = "sha256d"
	Sha256Name       = "sha256"
	Keccak256Name    = "keccak256"
	Blake2b256Name   = "blake2b256"
)

// Sha256 hashes the incoming byte slice using the sha256 algorithm.
func Sha256(data []byte) util.Uint256 {
	return sha256.Sum256(data)
}

// DoubleSha256 performs sha256 twice on the given data.
func DoubleSha256(data []byte) util.Uint256 {
	h1 := Sha256(data)
	return Sha256(h1[:])
}

// Keccak256 hashes the incoming byte slice using the legacy Keccak-256
// algorithm (the one used by Ethereum tries).
func Keccak256(data []byte) util.Uint256 {
	var res util.Uint256
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data) // Never returns an error.
	h.Sum(res[:0])
	return res
}

// Blake2b256 hashes the incoming byte slice using BLAKE2b with a 256-bit
// digest.
func Blake2b256(data []byte) util.Uint256 {
	return blake2b.Sum256(data)
}

// ByName returns the hash function registered under the given name along
// with the canonical name of it. Names are case-insensitive, an empty name
// selects DoubleSha256.
func ByName(name string) (Func, string, error) {
	switch strings.ToLower(name) {
	case "", DoubleSha256Name:
		return DoubleSha256, DoubleSha256Name, nil
	case Sha256Name:
		return Sha256, Sha256Name, nil
	case Keccak256Name:
		return Keccak256, Keccak256Name, nil
	case Blake2b256Name:
		return Blake2b256, Blake2b256Name, nil
	default:
		return nil, "", fmt.Errorf("unknown hash function: %s", name)
	}
}
