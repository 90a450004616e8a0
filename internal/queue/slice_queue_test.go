package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceQueue(t *testing.T) {
	q := NewSliceQueue[string](2)
	assert.True(t, q.IsEmpty())

	_, ok := q.Dequeue()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)

	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")
	assert.Equal(t, 3, q.Length())

	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, q.Length())

	q.Reset()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Length())

	q.Enqueue("d")
	v, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "d", v)
}

func TestSliceQueue_Pointers(t *testing.T) {
	type item struct{ n int }

	q := NewSliceQueue[*item](0)
	for i := range 10 {
		q.Enqueue(&item{n: i})
	}
	for i := range 10 {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v.n)
	}
	assert.True(t, q.IsEmpty())
}
