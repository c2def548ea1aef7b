package growpipe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCapacityStrictlyIncreases(t *testing.T) {
	for _, current := range []int{0, 1, 2, 3, 1024, 4096, math.MaxInt / 2} {
		next, err := nextCapacity(current, 0)
		require.NoError(t, err, "current=%d", current)
		assert.Greater(t, next, current, "current=%d", current)
	}
}

func TestNextCapacityDoubles(t *testing.T) {
	next, err := nextCapacity(DefaultCapacity, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultCapacity, next)

	next, err = nextCapacity(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestNextCapacityOverflow(t *testing.T) {
	for _, current := range []int{math.MaxInt, math.MaxInt/2 + 1} {
		_, err := nextCapacity(current, 0)
		assert.ErrorIs(t, err, ErrOutOfMemory, "current=%d", current)
	}
}

func TestNextCapacityLimit(t *testing.T) {
	tests := []struct {
		name    string
		current int
		limit   int
		want    int
		wantErr bool
	}{
		{"BelowLimit", 2, 10, 4, false},
		{"Clamped", 3, 5, 5, false},
		{"ClampedToOneMore", 2, 3, 3, false},
		{"AtLimit", 4, 4, 0, true},
		{"AboveLimit", 8, 4, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCapacity(tt.current, tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfMemory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocateFailure(t *testing.T) {
	n := -1
	buf, err := allocate(n)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Nil(t, buf)
}

func TestStoreAppendTake(t *testing.T) {
	s, err := newByteStore(4, 0)
	require.NoError(t, err)

	for _, c := range []byte("abc") {
		_, err := s.ensure()
		require.NoError(t, err)
		require.NoError(t, s.append(c))
	}
	assert.Equal(t, 3, s.pending())

	for _, want := range []byte("abc") {
		c, err := s.take()
		require.NoError(t, err)
		assert.Equal(t, want, c)
	}
	assert.Equal(t, 0, s.pending())
	assert.Equal(t, 3, s.readPos)
	assert.Equal(t, 3, s.writePos)
}

func TestStoreUnderflow(t *testing.T) {
	s, err := newByteStore(4, 0)
	require.NoError(t, err)

	_, err = s.take()
	assert.ErrorIs(t, err, ErrUnderflow)
	assert.Equal(t, 0, s.readPos)
}

func TestStoreAppendWithoutCapacity(t *testing.T) {
	s, err := newByteStore(1, 0)
	require.NoError(t, err)

	require.NoError(t, s.append('a'))
	assert.ErrorIs(t, s.append('b'), ErrStoreFull)
	assert.Equal(t, 1, s.writePos)
}

func TestStoreGrowthPreservesData(t *testing.T) {
	s, err := newByteStore(2, 0)
	require.NoError(t, err)

	var grows int
	for _, c := range []byte("hello") {
		grown, err := s.ensure()
		require.NoError(t, err)
		if grown {
			grows++
		}
		require.NoError(t, s.append(c))
	}
	assert.Equal(t, 2, grows)
	assert.Equal(t, 2, s.grows)
	assert.Equal(t, 8, s.capacity())
	assert.Equal(t, []byte("hello"), s.data[s.readPos:s.writePos])
}

func TestStoreEnsureFailureLeavesState(t *testing.T) {
	s, err := newByteStore(2, 2)
	require.NoError(t, err)
	require.NoError(t, s.append('a'))
	require.NoError(t, s.append('b'))
	before := s.data

	grown, err := s.ensure()
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.False(t, grown)
	assert.Equal(t, 2, s.capacity())
	assert.Equal(t, 2, s.writePos)
	assert.Equal(t, 0, s.grows)
	assert.Same(t, &before[0], &s.data[0])
}

func TestStoreRelease(t *testing.T) {
	s, err := newByteStore(4, 0)
	require.NoError(t, err)
	require.NoError(t, s.append('a'))

	s.release()
	assert.Equal(t, 0, s.capacity())
	assert.Equal(t, 1, s.writePos)
}

func requireUnderflowPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v", r)
		assert.ErrorIs(t, err, ErrUnderflow)
	}()
	f()
}

func TestPipeTakeEmptyPanics(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	requireUnderflowPanic(t, func() { p.take() })
}

func TestReadAfterUnmatchedSignalPanics(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	// an availability unit with no byte behind it
	p.avail.signal()
	requireUnderflowPanic(t, func() { _, _ = p.ReadByte() })
	assert.Equal(t, 0, p.Len())
}
