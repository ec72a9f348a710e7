package websocket

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklogPushAndDrain(t *testing.T) {
	b := newBacklog(10)
	b.push([]byte("один"))
	b.push([]byte("два"))
	b.push([]byte("три"))
	require.Equal(t, 3, b.len())

	frames := b.drain()
	require.Len(t, frames, 3)
	assert.Equal(t, "один", string(frames[0]))
	assert.Equal(t, "два", string(frames[1]))
	assert.Equal(t, "три", string(frames[2]))

	assert.Equal(t, 0, b.len())
	assert.Empty(t, b.drain())
}

// При переполнении вытесняются старейшие кадры, порядок остальных сохраняется.
func TestBacklogEvictsOldest(t *testing.T) {
	b := newBacklog(3)
	for i := 1; i <= 5; i++ {
		b.push([]byte(fmt.Sprintf("кадр-%d", i)))
	}
	require.Equal(t, 3, b.len())

	frames := b.drain()
	require.Len(t, frames, 3)
	assert.Equal(t, "кадр-3", string(frames[0]))
	assert.Equal(t, "кадр-4", string(frames[1]))
	assert.Equal(t, "кадр-5", string(frames[2]))
}

func TestBacklogDisabled(t *testing.T) {
	for _, max := range []int{0, -1} {
		b := newBacklog(max)
		b.push([]byte("кадр"))
		assert.Equal(t, 0, b.len(), "max=%d", max)
		assert.Empty(t, b.drain())
	}
}
