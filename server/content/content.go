package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"time"

	"gallery/server/domain"
)

var (
	ErrNoPointValues      = errors.New("content: point values are empty")
	ErrInvalidPointValue  = errors.New("content: point values must be positive")
	ErrInvalidSpawnRate   = errors.New("content: spawn rates must be positive and base >= min")
	ErrInvalidPoolSize    = errors.New("content: pool size must be >= max concurrent targets")
	ErrInvalidSpawnZone   = errors.New("content: spawn zone is missing or empty")
	ErrInvalidMilestone   = errors.New("content: milestone interval must be positive")
	ErrTooManyTargetTypes = errors.New("content: too many target types")
)

const fallbackPointValue = 10

// SpawnZone はターゲットを出現させる XZ 平面上の矩形です。
type SpawnZone struct {
	MinX float32 `json:"minX"`
	MaxX float32 `json:"maxX"`
	MinZ float32 `json:"minZ"`
	MaxZ float32 `json:"maxZ"`
}

func (z SpawnZone) Valid() bool {
	return z.MaxX >= z.MinX && z.MaxZ >= z.MinZ
}

func (z SpawnZone) Contains(p domain.Position) bool {
	return p.X >= z.MinX && p.X <= z.MaxX && p.Z >= z.MinZ && p.Z <= z.MaxZ
}

// Content はゲームの調整値です。起動時に読み込まれ、実行中は変更されません。
type Content struct {
	PointValues                   []int             `json:"pointValues"`
	BaseSpawnRate                 float64           `json:"baseSpawnRate"`
	MinSpawnRate                  float64           `json:"minSpawnRate"`
	SpawnRateDecreasePerMilestone float64           `json:"spawnRateDecreasePerMilestone"`
	DifficultyMilestoneInterval   int               `json:"difficultyMilestoneInterval"`
	MaxConcurrentTargets          int               `json:"maxConcurrentTargets"`
	PoolSize                      int               `json:"poolSize"`
	SpawnZone                     *SpawnZone        `json:"spawnZone"`
	SpawnHeight                   float32           `json:"spawnHeight"`
	SpawnPoints                   []domain.Position `json:"spawnPoints"`
}

func Default() *Content {
	return &Content{
		PointValues:                   []int{10, 20, 30},
		BaseSpawnRate:                 2.0,
		MinSpawnRate:                  0.5,
		SpawnRateDecreasePerMilestone: 0.1,
		DifficultyMilestoneInterval:   50,
		MaxConcurrentTargets:          5,
		PoolSize:                      20,
		SpawnZone:                     &SpawnZone{MinX: -10, MaxX: 10, MinZ: 5, MaxZ: 25},
		SpawnHeight:                   1,
		SpawnPoints: []domain.Position{
			{X: -4, Y: 1, Z: 0},
			{X: 4, Y: 1, Z: 0},
			{X: -8, Y: 1, Z: 0},
			{X: 8, Y: 1, Z: 0},
		},
	}
}

// Load は path の JSON を読み込みます。ファイルが無い場合は既定値を返します。
// 省略されたフィールドは既定値のままです。
func Load(path string) (*Content, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("content file not found, using defaults", "path", path)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return c, c.Validate()
}

// Validate はコンテンツ全体を検証します。ターゲットプールの設定不備は
// プール側で機能を無効化するため、ここでは得点表のみを必須とします。
func (c *Content) Validate() error {
	if len(c.PointValues) == 0 {
		return ErrNoPointValues
	}
	if len(c.PointValues) > math.MaxUint8+1 {
		return ErrTooManyTargetTypes
	}
	for _, v := range c.PointValues {
		if v <= 0 {
			return ErrInvalidPointValue
		}
	}
	return nil
}

// ValidatePool はターゲットプールに関する設定を検証します。
func (c *Content) ValidatePool() error {
	if c.SpawnZone == nil || !c.SpawnZone.Valid() {
		return ErrInvalidSpawnZone
	}
	if c.MaxConcurrentTargets <= 0 || c.PoolSize < c.MaxConcurrentTargets || c.PoolSize > math.MaxUint16 {
		return ErrInvalidPoolSize
	}
	if c.BaseSpawnRate <= 0 || c.MinSpawnRate <= 0 || c.BaseSpawnRate < c.MinSpawnRate || c.SpawnRateDecreasePerMilestone < 0 {
		return ErrInvalidSpawnRate
	}
	if c.DifficultyMilestoneInterval <= 0 {
		return ErrInvalidMilestone
	}
	return nil
}

// TargetTypes はターゲット種別の数です。
func (c *Content) TargetTypes() int {
	return len(c.PointValues)
}

// PointValue は種別ごとの得点を返します。範囲外は先頭の値、空なら 10 です。
func (c *Content) PointValue(typeIndex int) int {
	if typeIndex >= 0 && typeIndex < len(c.PointValues) {
		return c.PointValues[typeIndex]
	}
	if len(c.PointValues) > 0 {
		return c.PointValues[0]
	}
	return fallbackPointValue
}

// SpawnRate はスコアに応じた出現間隔を返します。
//
//	max(min, base - floor(score/interval) * decrease)
func (c *Content) SpawnRate(score int) time.Duration {
	interval := c.DifficultyMilestoneInterval
	if interval <= 0 {
		interval = 1
	}
	milestones := 0
	if score > 0 {
		milestones = score / interval
	}
	seconds := max(c.MinSpawnRate, c.BaseSpawnRate-float64(milestones)*c.SpawnRateDecreasePerMilestone)
	return time.Duration(seconds * float64(time.Second))
}

// SpawnPoint はプレイヤー出現位置を返します。出現位置が無い場合は (0,1,0) です。
func (c *Content) SpawnPoint(index int) (domain.Position, bool) {
	if len(c.SpawnPoints) == 0 {
		return domain.Position{X: 0, Y: 1, Z: 0}, false
	}
	if index < 0 {
		index = -index
	}
	return c.SpawnPoints[index%len(c.SpawnPoints)], true
}
