package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDefinition - формат записи блока в YAML-файле
type fileDefinition struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	Solid          bool   `yaml:"solid"`
	Opacity        int    `yaml:"opacity"`
	LightEmission  int    `yaml:"light_emission"`
	Indestructible bool   `yaml:"indestructible"`
	Material       string `yaml:"material"`
	RandomTick     string `yaml:"random_tick"`
}

type blocksFile struct {
	Blocks []fileDefinition `yaml:"blocks"`
}

// LoadYAML читает определения блоков из файла и регистрирует их поверх существующих.
// Возвращает количество загруженных блоков.
func (r *Registry) LoadYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return r.LoadYAMLBytes(data)
}

// LoadYAMLBytes - то же, что LoadYAML, но из памяти
func (r *Registry) LoadYAMLBytes(data []byte) (int, error) {
	var f blocksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("разбор файла блоков: %w", err)
	}

	defs := make([]Definition, 0, len(f.Blocks))
	for _, fd := range f.Blocks {
		def, err := fd.toDefinition()
		if err != nil {
			return 0, err
		}
		defs = append(defs, def)
	}

	// регистрируем только если весь файл корректен
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

func (fd fileDefinition) toDefinition() (Definition, error) {
	if fd.ID < 0 || fd.ID > 255 {
		return Definition{}, fmt.Errorf("блок %q: id %d вне диапазона 0..255", fd.Name, fd.ID)
	}
	if fd.Opacity < 0 || fd.Opacity > 15 || fd.LightEmission < 0 || fd.LightEmission > 15 {
		return Definition{}, fmt.Errorf("блок %q: opacity/light_emission вне диапазона 0..15", fd.Name)
	}

	material := MaterialNone
	if fd.Material != "" {
		m, err := ParseMaterial(fd.Material)
		if err != nil {
			return Definition{}, fmt.Errorf("блок %q: %w", fd.Name, err)
		}
		material = m
	}

	tick, err := ParseTickKind(fd.RandomTick)
	if err != nil {
		return Definition{}, fmt.Errorf("блок %q: %w", fd.Name, err)
	}

	return Definition{
		ID:             ID(fd.ID),
		Name:           fd.Name,
		Solid:          fd.Solid,
		Opacity:        uint8(fd.Opacity),
		LightEmission:  uint8(fd.LightEmission),
		Indestructible: fd.Indestructible,
		Material:       material,
		RandomTick:     tick,
	}, nil
}
