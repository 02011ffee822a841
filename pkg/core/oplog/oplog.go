/*
Package oplog implements an ordered log of trie mutations. The log is replayed
against the stale copy of a split-copy trie after every publish, so it only
keeps plain ordered data that produces the same result wherever it's applied.
*/
package oplog

import (
	"encoding/hex"
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/io"
	"go.uber.org/zap/zapcore"
)

// OpType is a type of mutation.
type OpType byte

// Supported operation types.
const (
	// Insert puts a value for the key.
	Insert OpType = 0x01
	// Remove deletes the key, it's a no-op for a missing key.
	Remove OpType = 0x02
	// Extend inserts a batch of key-value pairs.
	Extend OpType = 0x03
)

// MaxBatchSize is the maximum number of pairs in a single Extend operation.
const MaxBatchSize = 1 << 16

// String implements fmt.Stringer.
func (t OpType) String() string {
	switch t {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Extend:
		return "extend"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// KeyValue is a key-value pair of Extend operation. Remove marks a pair
// deleting the key, Value is ignored then.
type KeyValue struct {
	Key    []byte
	Value  []byte
	Remove bool
}

// Operation is a single mutation. Key and Value are used by Insert and
// Remove, Batch is used by Extend.
type Operation struct {
	Type  OpType
	Key   []byte
	Value []byte
	Batch []KeyValue
}

// cloneValue copies v, nil becomes an empty value.
func cloneValue(v []byte) []byte {
	res := make([]byte, len(v))
	copy(res, v)
	return res
}

// NewInsert creates an Insert operation. Both key and value are copied.
func NewInsert(key, value []byte) Operation {
	return Operation{Type: Insert, Key: cloneValue(key), Value: cloneValue(value)}
}

// NewRemove creates a Remove operation. The key is copied.
func NewRemove(key []byte) Operation {
	return Operation{Type: Remove, Key: cloneValue(key)}
}

// NewExtend creates an Extend operation from a copy of kvs. Later pairs
// win over earlier ones with the same key. Removal pairs have nil Value.
func NewExtend(kvs []KeyValue) Operation {
	batch := make([]KeyValue, len(kvs))
	for i := range kvs {
		batch[i] = KeyValue{Key: cloneValue(kvs[i].Key), Remove: kvs[i].Remove}
		if !kvs[i].Remove {
			batch[i].Value = cloneValue(kvs[i].Value)
		}
	}
	return Operation{Type: Extend, Batch: batch}
}

// EncodeBinary implements io.Serializable.
func (kv KeyValue) EncodeBinary(w *io.BinWriter) {
	if kv.Remove {
		w.WriteB(1)
		w.WriteVarBytes(kv.Key)
		return
	}
	w.WriteB(0)
	w.WriteVarBytes(kv.Key)
	w.WriteVarBytes(kv.Value)
}

// DecodeBinary implements io.Serializable.
func (kv *KeyValue) DecodeBinary(r *io.BinReader) {
	switch b := r.ReadB(); b {
	case 0:
		kv.Remove = false
	case 1:
		kv.Remove = true
	default:
		if r.Err == nil {
			r.Err = fmt.Errorf("invalid removal flag %d", b)
		}
		return
	}
	kv.Key = r.ReadVarBytes()
	kv.Value = nil
	if !kv.Remove {
		kv.Value = r.ReadVarBytes()
	}
}

// EncodeBinary implements io.Serializable.
func (o Operation) EncodeBinary(w *io.BinWriter) {
	w.WriteB(byte(o.Type))
	switch o.Type {
	case Insert:
		w.WriteVarBytes(o.Key)
		w.WriteVarBytes(o.Value)
	case Remove:
		w.WriteVarBytes(o.Key)
	case Extend:
		io.WriteArray(w, o.Batch)
	}
}

// DecodeBinary implements io.Serializable.
func (o *Operation) DecodeBinary(r *io.BinReader) {
	o.Type = OpType(r.ReadB())
	switch o.Type {
	case Insert:
		o.Key = r.ReadVarBytes()
		o.Value = r.ReadVarBytes()
	case Remove:
		o.Key = r.ReadVarBytes()
	case Extend:
		o.Batch = io.ReadArray[KeyValue](r, MaxBatchSize)
	default:
		if r.Err == nil {
			r.Err = fmt.Errorf("unknown operation type %d", o.Type)
		}
	}
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (o Operation) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", o.Type.String())
	switch o.Type {
	case Insert:
		enc.AddString("key", hex.EncodeToString(o.Key))
		enc.AddInt("value_len", len(o.Value))
	case Remove:
		enc.AddString("key", hex.EncodeToString(o.Key))
	case Extend:
		enc.AddInt("pairs", len(o.Batch))
	}
	return nil
}

// Log is an ordered list of operations. It's not safe for concurrent use,
// the owner serializes access to it.
type Log struct {
	ops []Operation
}

// Append adds op to the end of the log.
func (l *Log) Append(op Operation) {
	l.ops = append(l.ops, op)
}

// Drain returns all logged operations in order and empties the log.
func (l *Log) Drain() []Operation {
	ops := l.ops
	l.ops = nil
	return ops
}

// Clear drops all logged operations.
func (l *Log) Clear() {
	l.ops = nil
}

// Len returns the number of logged operations.
func (l *Log) Len() int {
	return len(l.ops)
}

// Ops returns logged operations in order. The result must not be modified.
func (l *Log) Ops() []Operation {
	return l.ops
}

// MarshalLogArray implements zapcore.ArrayMarshaler.
func (l *Log) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for i := range l.ops {
		if err := enc.AppendObject(l.ops[i]); err != nil {
			return err
		}
	}
	return nil
}

// EncodeBinary implements io.Serializable.
func (l *Log) EncodeBinary(w *io.BinWriter) {
	io.WriteArray(w, l.ops)
}

// DecodeBinary implements io.Serializable.
func (l *Log) DecodeBinary(r *io.BinReader) {
	l.ops = io.ReadArray[Operation](r)
}
