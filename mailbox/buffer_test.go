package mailbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnboundedBufferFIFO(t *testing.T) {
	t.Parallel()

	b := Unbounded[int]().newBuffer()

	for i := 0; i < 5; i++ {
		require.Equal(t, accepted, b.write(i))
	}

	for i := 0; i < 5; i++ {
		v, ok := b.read()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	require.True(t, b.isEmpty())
	_, ok := b.read()
	require.False(t, ok)
}

func TestBoundedBufferFull(t *testing.T) {
	t.Parallel()

	b := Bounded[int](2).newBuffer()

	require.Equal(t, accepted, b.write(1))
	require.Equal(t, accepted, b.write(2))
	require.Equal(t, full, b.write(3))
	require.False(t, b.wouldAccept())

	v, ok := b.read()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.True(t, b.wouldAccept())

	require.Equal(t, accepted, b.write(3))
}

func TestSingleBufferRendezvous(t *testing.T) {
	t.Parallel()

	b := Single[int]().newBuffer()

	require.True(t, b.isEmpty())
	require.Equal(t, accepted, b.write(7))
	require.False(t, b.isEmpty())
	require.Equal(t, full, b.write(8))

	v, ok := b.read()
	require.True(t, ok)
	require.Equal(t, 7, v)
	require.True(t, b.isEmpty())
}

func TestLatestBufferNeverEmptyNeverFull(t *testing.T) {
	t.Parallel()

	b := Latest[int](42).newBuffer()

	require.False(t, b.isEmpty())

	v, ok := b.read()
	require.True(t, ok)
	require.Equal(t, 42, v)

	// Reading does not consume: the same value comes back again.
	v, ok = b.read()
	require.True(t, ok)
	require.Equal(t, 42, v)

	require.Equal(t, accepted, b.write(1))
	require.Equal(t, accepted, b.write(2))

	v, ok = b.read()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestNewestBufferDropsOldest(t *testing.T) {
	t.Parallel()

	b := Newest[int](3).newBuffer()

	for i := 1; i <= 5; i++ {
		require.Equal(t, accepted, b.write(i))
	}

	var got []int
	for {
		v, ok := b.read()
		if !ok {
			break
		}
		got = append(got, v)
	}

	require.Equal(t, []int{3, 4, 5}, got)
}

func TestNewBufferOverwritesSlot(t *testing.T) {
	t.Parallel()

	b := New[int]().newBuffer()

	require.Equal(t, accepted, b.write(1))
	require.Equal(t, accepted, b.write(2))

	v, ok := b.read()
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.True(t, b.isEmpty())
}
