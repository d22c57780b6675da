package world

import (
	"fmt"

	"github.com/annel0/voxel-world/internal/logging"
)

// startWorkers запускает горутины генерации ландшафта.
// Рабочие только заполняют воксели; стадию чанка меняет поток симуляции.
func (m *ChunkManager) startWorkers(n int) {
	m.dispatch = make(chan *Chunk, n*4)
	for i := 0; i < n; i++ {
		m.wg.Add(1)
		go m.generationWorker(i)
	}
	logging.Info("Запущено горутин генерации: %d", n)
}

func (m *ChunkManager) stopWorkers() {
	if m.dispatch == nil {
		return
	}
	close(m.dispatch)
	m.wg.Wait()
	m.dispatch = nil
}

func (m *ChunkManager) generationWorker(id int) {
	defer m.wg.Done()
	for c := range m.dispatch {
		var err error
		if !c.IsDisposed() {
			err = m.generate(c)
		}
		m.completed.Push(generationResult{chunk: c, err: err})
	}
	logging.Debug("Горутина генерации %d завершена", id)
}

// generate вызывает генератор, перехватывая панику
func (m *ChunkManager) generate(c *Chunk) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника генератора: %v", r)
		}
	}()
	if err := m.generator.Generate(m.wctx, c); err != nil {
		return err
	}
	// свежий ландшафт совпадает с тем, что генератор выдаст снова
	c.ClearModified()
	return nil
}

// ProcessTerrainRequests обрабатывает до limit запросов ландшафта и собирает
// результаты рабочих горутин. Возвращает чанки, впервые получившие ландшафт в этом вызове
// (включая восстановленные из хранилища).
func (m *ChunkManager) ProcessTerrainRequests(limit int) []*Chunk {
	var ready []*Chunk

	for _, req := range m.terrainQueue.PopN(limit) {
		c := m.GetChunk(req.Coord)
		if c == nil || c.IsDisposed() {
			continue
		}
		switch c.State() {
		case StateRequested:
			if m.dispatch != nil {
				select {
				case m.dispatch <- c:
					m.inflight.Add(1)
				default:
					// рабочие заняты: вернём запрос в хвост очереди
					m.terrainQueue.Push(req)
				}
				continue
			}
			if err := m.generate(c); err != nil {
				m.genFailures.Add(1)
				logging.Error("Генерация чанка %s не удалась: %v", c.Coord, err)
				continue
			}
			if c.Advance(StateTerrainGenerated) {
				m.generated.Add(1)
				ready = append(ready, c)
			}
		case StateTerrainGenerated:
			// восстановлен из хранилища, освещения ещё нет
			ready = append(ready, c)
		}
	}

	for _, res := range m.completed.PopN(m.completed.Len()) {
		m.inflight.Add(-1)
		c := res.chunk
		if res.err != nil {
			m.genFailures.Add(1)
			logging.Error("Генерация чанка %s не удалась: %v", c.Coord, res.err)
			continue
		}
		if c.IsDisposed() || m.GetChunk(c.Coord) != c {
			continue
		}
		if c.Advance(StateTerrainGenerated) {
			m.generated.Add(1)
			ready = append(ready, c)
		}
	}
	return ready
}

// PendingGeneration - запросы в очереди и чанки у рабочих
func (m *ChunkManager) PendingGeneration() int {
	return m.terrainQueue.Len() + int(m.inflight.Load())
}
