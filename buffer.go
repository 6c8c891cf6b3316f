package reactorcore

// ByteBuffer owns or borrows a contiguous region of bytes. An owning
// ByteBuffer may grow; a borrowed one may not (ErrNotOwned). The
// distinction is encoded as a tag on the struct rather than as two
// separate interface implementations, since the source's only two
// concrete lifecycles (owned heap buffer / borrowed caller buffer) never
// need a third implementation.
type ByteBuffer struct {
	data  []byte
	size  int
	owned bool
}

// NewByteBuffer allocates an owning buffer with the given capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{data: make([]byte, capacity), owned: true}
}

// NewByteBufferFromCopy allocates an owning buffer and copies n bytes from src.
func NewByteBufferFromCopy(src []byte, n int) *ByteBuffer {
	b := &ByteBuffer{data: make([]byte, n), owned: true}
	copy(b.data, src[:n])
	b.size = n
	return b
}

// NewByteBufferFromBorrow wraps an existing slice without copying. The
// resulting buffer cannot be resized.
func NewByteBufferFromBorrow(src []byte, n int) *ByteBuffer {
	return &ByteBuffer{data: src[:n], size: n, owned: false}
}

// Size returns the number of bytes in use.
func (b *ByteBuffer) Size() int { return b.size }

// Capacity returns the allocated length of the backing array.
func (b *ByteBuffer) Capacity() int { return len(b.data) }

// Bytes returns the in-use prefix of the backing array. Callers must not
// retain it across a Resize/SetCapacity/Append that might reallocate.
func (b *ByteBuffer) Bytes() []byte { return b.data[:b.size] }

// At returns the byte at index i.
func (b *ByteBuffer) At(i int) byte { return b.data[i] }

// SetAt sets the byte at index i.
func (b *ByteBuffer) SetAt(i int, v byte) { b.data[i] = v }

// Clear resets size to zero without releasing the backing array.
func (b *ByteBuffer) Clear() { b.size = 0 }

// SetCapacity grows or shrinks the backing array to n, optionally
// preserving min(old size, n) bytes. Fails on a borrowed buffer.
func (b *ByteBuffer) SetCapacity(n int, preserve bool) error {
	if !b.owned {
		return ErrNotOwned
	}
	nd := make([]byte, n)
	if preserve {
		keep := b.size
		if n < keep {
			keep = n
		}
		copy(nd, b.data[:keep])
	}
	b.data = nd
	if b.size > n {
		b.size = n
	}
	return nil
}

// Resize sets size to n, reallocating the backing array first if n exceeds
// capacity. Fails on a borrowed buffer unconditionally, whether n grows,
// shrinks, or equals the current size.
func (b *ByteBuffer) Resize(n int, preserve bool) error {
	if !b.owned {
		return ErrNotOwned
	}
	if n > len(b.data) {
		if err := b.SetCapacity(n, preserve); err != nil {
			return err
		}
	}
	b.size = n
	return nil
}

// Assign replaces the contents with a copy of src[:n], growing if needed.
func (b *ByteBuffer) Assign(src []byte, n int) error {
	if err := b.Resize(n, false); err != nil {
		return err
	}
	copy(b.data[:n], src[:n])
	b.size = n
	return nil
}

// Append copies src[:n] onto the tail, growing size by n (and the backing
// array, if necessary).
func (b *ByteBuffer) Append(src []byte, n int) error {
	old := b.size
	if err := b.Resize(old+n, true); err != nil {
		return err
	}
	copy(b.data[old:old+n], src[:n])
	return nil
}
