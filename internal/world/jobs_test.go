package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobQueueFIFOAndCapacity(t *testing.T) {
	q := NewJobQueue[int](3, false)
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.True(t, q.Push(2), "без unique дубликаты разрешены")
	assert.False(t, q.Push(4), "очередь заполнена")

	assert.Equal(t, []int{1, 2}, q.PopN(2))
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.Push(5))
	assert.Equal(t, []int{2, 5}, q.PopN(10))
	assert.Nil(t, q.PopN(1))
}

func TestJobQueueUnique(t *testing.T) {
	q := NewJobQueue[TerrainGenRequest](0, true)
	a := TerrainGenRequest{Coord: ChunkCoord{X: 1, Z: 2}}
	assert.True(t, q.Push(a))
	assert.True(t, q.Push(a))
	assert.Equal(t, 1, q.Len(), "повторная постановка не добавляет элемент")

	q.PopN(1)
	assert.True(t, q.Push(a))
	assert.Equal(t, 1, q.Len(), "после извлечения элемент можно поставить снова")
}

func TestJobQueueRemoveIf(t *testing.T) {
	q := NewJobQueue[int](0, true)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	q.PopN(2)

	removed := q.RemoveIf(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 4, removed)
	assert.Equal(t, []int{3, 5, 7, 9}, q.PopN(10))

	assert.True(t, q.Push(4))
	assert.Equal(t, 1, q.Len(), "удалённый элемент больше не считается ожидающим")
}

func TestJobQueueConcurrentProducers(t *testing.T) {
	q := NewJobQueue[int](0, false)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Push(base*1000 + i)
			}
		}(p)
	}
	wg.Wait()

	total := 0
	for {
		batch := q.PopN(333)
		if len(batch) == 0 {
			break
		}
		total += len(batch)
	}
	assert.Equal(t, 8000, total)
}

func TestJobQueueClear(t *testing.T) {
	q := NewJobQueue[int](2, true)
	q.Push(1)
	q.Push(2)
	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Push(1))
	assert.Equal(t, 2, q.Capacity())
}
