package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ModConfig はユーザーが編集できる上書き設定ファイルです。
type ModConfig struct {
	ModName      string       `json:"modName"`
	Author       string       `json:"author"`
	Version      string       `json:"version"`
	GameplayMods GameplayMods `json:"gameplayMods"`
}

type GameplayMods struct {
	TargetPointValues []int   `json:"targetPointValues"`
	SpawnRate         float64 `json:"spawnRate"`
	PlayerSpeed       float64 `json:"playerSpeed"`
	ProjectileSpeed   float64 `json:"projectileSpeed"`
	Difficulty        string  `json:"difficulty"`
}

func DefaultMod() *ModConfig {
	return &ModConfig{
		ModName: "Default",
		Author:  "Unknown",
		Version: "1.0",
		GameplayMods: GameplayMods{
			TargetPointValues: []int{10, 20, 30},
			SpawnRate:         2.0,
			PlayerSpeed:       5.0,
			ProjectileSpeed:   20.0,
			Difficulty:        "normal",
		},
	}
}

// LoadMod は上書き設定を読み込みます。
// ファイルが無ければ既定値で作成し、壊れていれば既定値を使います。
func LoadMod(path string) (*ModConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m := DefaultMod()
		if err := writeMod(path, m); err != nil {
			return m, err
		}
		slog.Info("created default mod config", "path", path)
		return m, nil
	}
	if err != nil {
		return DefaultMod(), fmt.Errorf("read mod config: %w", err)
	}

	var m ModConfig
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("mod config is malformed, using defaults", "path", path, "err", err)
		return DefaultMod(), nil
	}
	slog.Info("loaded mod config", "name", m.ModName, "author", m.Author, "version", m.Version)
	return &m, nil
}

func writeMod(path string, m *ModConfig) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mod dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mod config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write mod config: %w", err)
	}
	return nil
}

// ApplyMod は上書き設定を反映したコピーを返します。正の値のみ採用します。
func (c *Content) ApplyMod(m *ModConfig) *Content {
	out := *c
	out.PointValues = append([]int(nil), c.PointValues...)
	out.SpawnPoints = append(out.SpawnPoints[:0:0], c.SpawnPoints...)
	if m == nil {
		return &out
	}
	for i, v := range m.GameplayMods.TargetPointValues {
		if v <= 0 {
			continue
		}
		switch {
		case i < len(out.PointValues):
			out.PointValues[i] = v
		case i == len(out.PointValues):
			out.PointValues = append(out.PointValues, v)
		}
	}
	if m.GameplayMods.SpawnRate > 0 {
		out.BaseSpawnRate = max(m.GameplayMods.SpawnRate, out.MinSpawnRate)
	}
	return &out
}
