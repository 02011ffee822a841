/*
Package slice contains byte slice helpers.
*/
package slice

// Copy returns a copy of b that doesn't share memory with it. nil stays nil
// and an empty slice stays empty, so that an empty value is never confused
// with an absent one.
func Copy(b []byte) []byte {
	if b == nil {
		return nil
	}
	d := make([]byte, len(b))
	copy(d, b)
	return d
}
