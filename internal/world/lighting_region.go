package world

import "github.com/annel0/voxel-world/internal/vec"

// Region - прямоугольный регион мировых координат, границы включительно
type Region struct {
	Min vec.Vec3
	Max vec.Vec3
}

// NewRegion нормализует углы
func NewRegion(a, b vec.Vec3) Region {
	return Region{
		Min: vec.Vec3{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: vec.Vec3{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}
}

// UnitRegion - регион из одной клетки
func UnitRegion(p vec.Vec3) Region {
	return Region{Min: p, Max: p}
}

// ColumnRegion - вся колонка чанка, расширенная на margin блоков по X/Z
func ColumnRegion(coord ChunkCoord, margin int) Region {
	o := coord.Origin()
	return Region{
		Min: vec.Vec3{X: o.X - margin, Y: 0, Z: o.Z - margin},
		Max: vec.Vec3{X: o.X + ChunkSize - 1 + margin, Y: ChunkHeight - 1, Z: o.Z + ChunkSize - 1 + margin},
	}
}

// Volume возвращает количество клеток
func (r Region) Volume() int {
	return (r.Max.X - r.Min.X + 1) * (r.Max.Y - r.Min.Y + 1) * (r.Max.Z - r.Min.Z + 1)
}

// Contains проверяет принадлежность точки
func (r Region) Contains(p vec.Vec3) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

// ClampY обрезает регион по высоте мира. ok=false, если регион целиком вне мира.
func (r Region) ClampY() (Region, bool) {
	r.Min.Y = max(r.Min.Y, 0)
	r.Max.Y = min(r.Max.Y, ChunkHeight-1)
	return r, r.Min.Y <= r.Max.Y
}

// MergeWith возвращает охватывающий регион
func (r Region) MergeWith(o Region) Region {
	return Region{
		Min: vec.Vec3{X: min(r.Min.X, o.Min.X), Y: min(r.Min.Y, o.Min.Y), Z: min(r.Min.Z, o.Min.Z)},
		Max: vec.Vec3{X: max(r.Max.X, o.Max.X), Y: max(r.Max.Y, o.Max.Y), Z: max(r.Max.Z, o.Max.Z)},
	}
}

// CanMergeWith - объединение не добавляет лишних клеток сверх суммы объёмов
func (r Region) CanMergeWith(o Region) bool {
	return r.MergeWith(o).Volume() <= r.Volume()+o.Volume()
}

// Split делит регион пополам по самой длинной оси, пока объём не станет <= maxVolume.
// Верхние части по Y идут первыми.
func (r Region) Split(maxVolume int) []Region {
	if maxVolume <= 0 || r.Volume() <= maxVolume {
		return []Region{r}
	}

	dx := r.Max.X - r.Min.X + 1
	dy := r.Max.Y - r.Min.Y + 1
	dz := r.Max.Z - r.Min.Z + 1

	a, b := r, r
	switch {
	case dy >= dx && dy >= dz:
		mid := r.Min.Y + dy/2
		a.Min.Y = mid
		b.Max.Y = mid - 1
	case dx >= dz:
		mid := r.Min.X + dx/2
		a.Max.X = mid - 1
		b.Min.X = mid
	default:
		mid := r.Min.Z + dz/2
		a.Max.Z = mid - 1
		b.Min.Z = mid
	}
	return append(a.Split(maxVolume), b.Split(maxVolume)...)
}

// mergeRegions жадно объединяет регионы, пока это возможно
func mergeRegions(regions []Region) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		merged := false
		for i := range out {
			if out[i].CanMergeWith(r) {
				out[i] = out[i].MergeWith(r)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, r)
		}
	}
	return out
}
