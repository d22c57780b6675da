package world

import (
	"sync"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// BlockUpdateJob - отложенное изменение блока игроком
type BlockUpdateJob struct {
	Pos      vec.Vec3
	Block    block.ID
	Breaking bool
}

// LightingJob - пересчёт канала света в регионе
type LightingJob struct {
	Type     LightType
	Region   Region
	Expected int // ожидаемое значение для единичной клетки, -1 если не задано
}

// MeshInvalidationJob - запрос на перестроение меша чанка
type MeshInvalidationJob struct {
	Coord ChunkCoord
}

// TerrainGenRequest - запрос генерации ландшафта
type TerrainGenRequest struct {
	Coord ChunkCoord
}

// JobQueue - ограниченная FIFO очередь для нескольких производителей и одного потребителя.
// С unique=true повторная постановка уже ожидающего элемента ничего не делает.
type JobQueue[T comparable] struct {
	mu       sync.Mutex
	items    []T
	head     int
	capacity int
	pending  map[T]struct{}
}

// NewJobQueue создаёт очередь; capacity <= 0 означает без ограничения
func NewJobQueue[T comparable](capacity int, unique bool) *JobQueue[T] {
	q := &JobQueue[T]{capacity: capacity}
	if unique {
		q.pending = make(map[T]struct{})
	}
	return q
}

// Push добавляет элемент. false - очередь заполнена.
func (q *JobQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending != nil {
		if _, ok := q.pending[item]; ok {
			return true
		}
	}
	if q.capacity > 0 && len(q.items)-q.head >= q.capacity {
		return false
	}
	q.items = append(q.items, item)
	if q.pending != nil {
		q.pending[item] = struct{}{}
	}
	return true
}

// PopN забирает до n элементов в порядке постановки
func (q *JobQueue[T]) PopN(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	avail := len(q.items) - q.head
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])

	var zero T
	for i := q.head; i < q.head+n; i++ {
		if q.pending != nil {
			delete(q.pending, q.items[i])
		}
		q.items[i] = zero
	}
	q.head += n
	q.compact()
	return out
}

// compact освобождает прочитанную часть буфера
func (q *JobQueue[T]) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 1024 && q.head*2 > len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		q.items = q.items[:remaining]
		q.head = 0
	}
}

// RemoveIf удаляет ожидающие элементы, удовлетворяющие условию
func (q *JobQueue[T]) RemoveIf(pred func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:q.head]
	removed := 0
	for _, it := range q.items[q.head:] {
		if pred(it) {
			removed++
			if q.pending != nil {
				delete(q.pending, it)
			}
			continue
		}
		kept = append(kept, it)
	}
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = kept
	q.compact()
	return removed
}

// Len возвращает число ожидающих элементов
func (q *JobQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Capacity возвращает ограничение очереди
func (q *JobQueue[T]) Capacity() int {
	return q.capacity
}

// Clear удаляет все элементы
func (q *JobQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.head = 0
	if q.pending != nil {
		q.pending = make(map[T]struct{})
	}
}
