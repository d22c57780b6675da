package block

import "fmt"

// Material описывает материал блока (звук разрушения, частицы)
type Material uint8

const (
	MaterialNone Material = iota
	MaterialStone
	MaterialEarth
	MaterialPlant
	MaterialWood
	MaterialSand
	MaterialLiquid
	MaterialGlass
)

var materialNames = map[Material]string{
	MaterialNone:   "none",
	MaterialStone:  "stone",
	MaterialEarth:  "earth",
	MaterialPlant:  "plant",
	MaterialWood:   "wood",
	MaterialSand:   "sand",
	MaterialLiquid: "liquid",
	MaterialGlass:  "glass",
}

func (m Material) String() string {
	if name, ok := materialNames[m]; ok {
		return name
	}
	return fmt.Sprintf("material(%d)", uint8(m))
}

// ParseMaterial возвращает материал по имени
func ParseMaterial(name string) (Material, error) {
	for m, n := range materialNames {
		if n == name {
			return m, nil
		}
	}
	return MaterialNone, fmt.Errorf("неизвестный материал %q", name)
}

// TickKind - вид поведения блока при случайном тике
type TickKind uint8

const (
	TickNone        TickKind = iota
	TickGrassSpread          // трава распространяется на землю и гибнет под непрозрачным блоком
	TickLeafDecay            // листва исчезает без бревна поблизости
)

var tickNames = map[TickKind]string{
	TickNone:        "none",
	TickGrassSpread: "grass_spread",
	TickLeafDecay:   "leaf_decay",
}

func (k TickKind) String() string {
	if name, ok := tickNames[k]; ok {
		return name
	}
	return fmt.Sprintf("tick(%d)", uint8(k))
}

// ParseTickKind возвращает вид тика по имени
func ParseTickKind(name string) (TickKind, error) {
	if name == "" {
		return TickNone, nil
	}
	for k, n := range tickNames {
		if n == name {
			return k, nil
		}
	}
	return TickNone, fmt.Errorf("неизвестный вид тика %q", name)
}

// Definition - свойства типа блока
type Definition struct {
	ID             ID
	Name           string
	Solid          bool
	Opacity        uint8 // 0..15, ослабление проходящего света
	LightEmission  uint8 // 0..15
	Indestructible bool
	Material       Material
	RandomTick     TickKind
}

// Opaque - блок учитывается картой высот (перекрывает небо)
func (d Definition) Opaque() bool {
	return d.Opacity > 0
}

// EffectiveOpacity - ослабление света не меньше 1
func (d Definition) EffectiveOpacity() uint8 {
	if d.Opacity < 1 {
		return 1
	}
	return d.Opacity
}

// HasRandomTick сообщает, реагирует ли блок на случайные тики
func (d Definition) HasRandomTick() bool {
	return d.RandomTick != TickNone
}

func (d Definition) validate() error {
	if d.Opacity > 15 {
		return fmt.Errorf("блок %d (%s): opacity %d вне диапазона 0..15", d.ID, d.Name, d.Opacity)
	}
	if d.LightEmission > 15 {
		return fmt.Errorf("блок %d (%s): light_emission %d вне диапазона 0..15", d.ID, d.Name, d.LightEmission)
	}
	return nil
}
