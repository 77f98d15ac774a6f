package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPointValue(t *testing.T) {
	c := Default()
	tests := []struct {
		name      string
		points    []int
		typeIndex int
		want      int
	}{
		{"first", []int{10, 20, 30}, 0, 10},
		{"last", []int{10, 20, 30}, 2, 30},
		{"out of range falls back to first", []int{15, 20, 30}, 3, 15},
		{"negative falls back to first", []int{15, 20, 30}, -1, 15},
		{"empty table", nil, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.PointValues = tt.points
			if got := c.PointValue(tt.typeIndex); got != tt.want {
				t.Errorf("PointValue(%d) = %d, want %d", tt.typeIndex, got, tt.want)
			}
		})
	}
}

func TestSpawnRate_Defaults(t *testing.T) {
	c := Default()
	tests := []struct {
		score int
		want  time.Duration
	}{
		{0, 2 * time.Second},
		{49, 2 * time.Second},
		{50, 1900 * time.Millisecond},
		{500, 1 * time.Second},
		{10000, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.SpawnRate(tt.score)
		// 浮動小数の誤差を許容する
		if diff := got - tt.want; diff > time.Millisecond || diff < -time.Millisecond {
			t.Errorf("SpawnRate(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestSpawnRate_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := Default()
		c.BaseSpawnRate = rapid.Float64Range(0.5, 10).Draw(t, "base")
		c.MinSpawnRate = rapid.Float64Range(0.1, c.BaseSpawnRate).Draw(t, "min")
		c.SpawnRateDecreasePerMilestone = rapid.Float64Range(0, 1).Draw(t, "decrease")
		c.DifficultyMilestoneInterval = rapid.IntRange(1, 200).Draw(t, "interval")
		a := rapid.IntRange(0, 100000).Draw(t, "a")
		b := rapid.IntRange(a, 100000).Draw(t, "b")

		minRate := time.Duration(c.MinSpawnRate * float64(time.Second))
		ra, rb := c.SpawnRate(a), c.SpawnRate(b)
		if rb > ra {
			t.Fatalf("SpawnRate(%d) = %v > SpawnRate(%d) = %v", b, rb, a, ra)
		}
		if rb < minRate-time.Microsecond {
			t.Fatalf("SpawnRate(%d) = %v below min %v", b, rb, minRate)
		}
	})
}

func TestValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default content invalid: %v", err)
	}
	if err := c.ValidatePool(); err != nil {
		t.Fatalf("default pool invalid: %v", err)
	}

	c.PointValues = nil
	if err := c.Validate(); !errors.Is(err, ErrNoPointValues) {
		t.Errorf("err = %v, want %v", err, ErrNoPointValues)
	}
	c.PointValues = []int{10, 0}
	if err := c.Validate(); !errors.Is(err, ErrInvalidPointValue) {
		t.Errorf("err = %v, want %v", err, ErrInvalidPointValue)
	}

	c = Default()
	c.SpawnZone = nil
	if err := c.ValidatePool(); !errors.Is(err, ErrInvalidSpawnZone) {
		t.Errorf("err = %v, want %v", err, ErrInvalidSpawnZone)
	}
	c = Default()
	c.PoolSize = 2
	if err := c.ValidatePool(); !errors.Is(err, ErrInvalidPoolSize) {
		t.Errorf("err = %v, want %v", err, ErrInvalidPoolSize)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	c, err := Load(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if c.PoolSize != 20 {
		t.Errorf("PoolSize = %d, want default 20", c.PoolSize)
	}

	path := filepath.Join(dir, "content.json")
	if err := os.WriteFile(path, []byte(`{"pointValues":[5,15],"poolSize":8}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.PoolSize != 8 || c.PointValue(1) != 15 || c.MaxConcurrentTargets != 5 {
		t.Errorf("loaded = %+v", c)
	}

	if err := os.WriteFile(path, []byte(`{"pointValues":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrNoPointValues) {
		t.Errorf("err = %v, want %v", err, ErrNoPointValues)
	}
}

func TestSpawnPoint(t *testing.T) {
	c := Default()
	p, ok := c.SpawnPoint(5)
	if !ok || p != c.SpawnPoints[1] {
		t.Errorf("SpawnPoint(5) = %+v, %v; want %+v", p, ok, c.SpawnPoints[1])
	}
	c.SpawnPoints = nil
	p, ok = c.SpawnPoint(0)
	if ok || p.Y != 1 || p.X != 0 || p.Z != 0 {
		t.Errorf("SpawnPoint without points = %+v, %v", p, ok)
	}
}
