package render

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/chartgen/internal/ir"
)

func TestJobQueueFIFO(t *testing.T) {
	q := newJobQueue(4)
	for i := 0; i < 3; i++ {
		assert.True(t, q.Enqueue(queuedJob{pos: i, job: ir.Job{Digest: ir.Digest(fmt.Sprintf("d%d", i))}}))
	}
	assert.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		j, ok := q.TryDequeue()
		assert.True(t, ok)
		assert.Equal(t, i, j.pos)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestJobQueueClose(t *testing.T) {
	q := newJobQueue(1)
	q.Enqueue(queuedJob{pos: 0})
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(queuedJob{pos: 1}), "closed queue rejects jobs")
	assert.Equal(t, 1, q.Len())

	j, ok := q.TryDequeue()
	assert.True(t, ok, "queued jobs survive Close")
	assert.Equal(t, 0, j.pos)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}
