package content

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMod_CreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Mods", "ModConfig.json")

	m, err := LoadMod(path)
	if err != nil {
		t.Fatalf("LoadMod: %v", err)
	}
	if m.ModName != "Default" {
		t.Errorf("ModName = %q, want Default", m.ModName)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default mod file not written: %v", err)
	}

	again, err := LoadMod(path)
	if err != nil {
		t.Fatalf("LoadMod again: %v", err)
	}
	if len(again.GameplayMods.TargetPointValues) != 3 {
		t.Errorf("reloaded point values = %v", again.GameplayMods.TargetPointValues)
	}
}

func TestLoadMod_MalformedUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ModConfig.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadMod(path)
	if err != nil {
		t.Fatalf("LoadMod: %v", err)
	}
	if m.GameplayMods.Difficulty != "normal" {
		t.Errorf("Difficulty = %q, want normal", m.GameplayMods.Difficulty)
	}
}

func TestApplyMod(t *testing.T) {
	base := Default()
	m := DefaultMod()
	m.GameplayMods.TargetPointValues = []int{100, -1, 300, 400}
	m.GameplayMods.SpawnRate = 1.5

	got := base.ApplyMod(m)
	want := []int{100, 20, 300, 400}
	if len(got.PointValues) != len(want) {
		t.Fatalf("PointValues = %v, want %v", got.PointValues, want)
	}
	for i := range want {
		if got.PointValues[i] != want[i] {
			t.Errorf("PointValues[%d] = %d, want %d", i, got.PointValues[i], want[i])
		}
	}
	if got.BaseSpawnRate != 1.5 {
		t.Errorf("BaseSpawnRate = %v, want 1.5", got.BaseSpawnRate)
	}
	// 元の値は変更されない
	if base.PointValues[0] != 10 {
		t.Errorf("base mutated: %v", base.PointValues)
	}
}
