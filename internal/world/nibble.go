package world

// NibbleArray упаковывает 4-битные значения по два в байт.
// Синхронизации нет: доступ упорядочивает владелец чанка.
type NibbleArray struct {
	data []byte
	size int
}

// NewNibbleArray создаёт массив на size значений (ceil(size/2) байт)
func NewNibbleArray(size int) *NibbleArray {
	if size < 0 {
		size = 0
	}
	return &NibbleArray{
		data: make([]byte, (size+1)/2),
		size: size,
	}
}

// Len возвращает количество значений
func (n *NibbleArray) Len() int {
	return n.size
}

// Get возвращает значение по линейному индексу, 0 вне диапазона
func (n *NibbleArray) Get(i int) uint8 {
	if i < 0 || i >= n.size {
		return 0
	}
	b := n.data[i>>1]
	if i&1 == 1 {
		return b >> 4
	}
	return b & 0x0F
}

// Set записывает значение. Значения > 15 и индексы вне диапазона молча игнорируются.
func (n *NibbleArray) Set(i int, v uint8) {
	if v > 0x0F || i < 0 || i >= n.size {
		return
	}
	idx := i >> 1
	if i&1 == 1 {
		n.data[idx] = n.data[idx]&0x0F | v<<4
	} else {
		n.data[idx] = n.data[idx]&0xF0 | v
	}
}

// Get3D - доступ по локальным координатам чанка
func (n *NibbleArray) Get3D(x, y, z int) uint8 {
	if !inChunkBounds(x, y, z) {
		return 0
	}
	return n.Get(voxelIndex(x, y, z))
}

// Set3D - запись по локальным координатам чанка
func (n *NibbleArray) Set3D(x, y, z int, v uint8) {
	if !inChunkBounds(x, y, z) {
		return
	}
	n.Set(voxelIndex(x, y, z), v)
}

// Fill заполняет массив одним значением
func (n *NibbleArray) Fill(v uint8) {
	if v > 0x0F {
		return
	}
	packed := v | v<<4
	for i := range n.data {
		n.data[i] = packed
	}
}

// Clear обнуляет массив
func (n *NibbleArray) Clear() {
	for i := range n.data {
		n.data[i] = 0
	}
}

// Bytes возвращает копию упакованных данных
func (n *NibbleArray) Bytes() []byte {
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out
}
