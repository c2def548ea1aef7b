package growpipe

import (
	"github.com/johncgriffin/overflow"
	"github.com/pkg/errors"
)

// DefaultCapacity is the initial buffer size used when none is configured.
const DefaultCapacity = 1024

// byteStore is an append-only byte buffer. Bytes are written at writePos and
// read at readPos; neither cursor ever wraps and the allocation never shrinks.
// Unread data occupies data[readPos:writePos].
type byteStore struct {
	data     []byte
	readPos  int
	writePos int
	limit    int // 0 means unbounded
	grows    int
}

// newByteStore allocates a store with the given initial capacity.
func newByteStore(size, limit int) (*byteStore, error) {
	data, err := allocate(size)
	if err != nil {
		return nil, err
	}
	return &byteStore{data: data, limit: limit}, nil
}

// nextCapacity returns the capacity to grow to from current. The result is
// always strictly greater than current.
func nextCapacity(current, limit int) (int, error) {
	if limit > 0 && current >= limit {
		return 0, errors.Wrapf(ErrOutOfMemory, "capacity %d reached limit %d", current, limit)
	}
	doubled, ok := overflow.Mul(current, 2)
	if !ok {
		return 0, errors.Wrapf(ErrOutOfMemory, "capacity %d cannot double", current)
	}
	next := max(doubled, current+1)
	if limit > 0 {
		next = min(next, limit)
	}
	return next, nil
}

// allocate turns a recoverable allocation panic (length out of range) into
// ErrOutOfMemory.
func allocate(n int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = errors.Wrapf(ErrOutOfMemory, "allocate %d bytes: %v", n, r)
		}
	}()
	return make([]byte, n), nil
}

// ensure makes room for one more byte, growing the buffer if it is full.
// On failure the store is left exactly as it was.
func (s *byteStore) ensure() (bool, error) {
	if s.writePos < len(s.data) {
		return false, nil
	}
	size, err := nextCapacity(len(s.data), s.limit)
	if err != nil {
		return false, err
	}
	data, err := allocate(size)
	if err != nil {
		return false, err
	}
	copy(data, s.data)
	s.data = data
	s.grows++
	return true, nil
}

// append writes c at the write cursor. ensure must have been called first.
func (s *byteStore) append(c byte) error {
	if s.writePos >= len(s.data) {
		return errors.WithStack(ErrStoreFull)
	}
	s.data[s.writePos] = c
	s.writePos++
	return nil
}

// take returns the byte at the read cursor.
func (s *byteStore) take() (byte, error) {
	if s.readPos >= s.writePos {
		return 0, errors.Wrapf(ErrUnderflow, "read %d, write %d", s.readPos, s.writePos)
	}
	c := s.data[s.readPos]
	s.readPos++
	return c, nil
}

func (s *byteStore) pending() int {
	return s.writePos - s.readPos
}

func (s *byteStore) capacity() int {
	return len(s.data)
}

// release drops the allocation. The cursors are kept for reporting.
func (s *byteStore) release() {
	s.data = nil
}
