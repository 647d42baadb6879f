package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"grid-optimizer/internal/models"

	"gopkg.in/yaml.v3"
)

// Default 返回优化器的标准配置。所有组件都从同一个 Config 对象读取参数，
// 配置文件中出现的字段会覆盖这里的值。
func Default() *models.Config {
	return &models.Config{
		Symbol:             "",
		InitialCapital:     100000,
		MaxCapitalUsage:    0.8,
		SingleGridMaxRatio: 0.15,
		LotSize: models.LotSizeConfig{
			Floor:   100,
			Ceiling: 1000,
			Step:    100,
		},
		Thresholds: models.AcceptanceThresholds{
			MinProfitRatio: 0.05,
			MaxDrawdown:    0.85,
			MinTradeCount:  10,
			MinWinRate:     0.25,
		},
		ParameterGrids: models.ParameterGrids{
			Daily: models.ParameterGrid{
				GridCounts:           []int{3, 5, 7},
				DeviationMultipliers: []float64{0.5, 0.75, 1.0},
				ProfitMultipliers:    []float64{0.3, 0.4, 0.5},
				PositionSteps:        []float64{0.2, 0.25, 0.3},
			},
			Intraday: models.ParameterGrid{
				GridCounts:           []int{5, 7, 9},
				DeviationMultipliers: []float64{0.3, 0.4, 0.5},
				ProfitMultipliers:    []float64{0.2, 0.3, 0.4},
				PositionSteps:        []float64{0.15, 0.2, 0.25},
			},
		},
		Optimizer: models.OptimizerConfig{
			Workers: 0,
			TopN:    10,
		},
		Server: models.ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		LogConfig: models.LogConfig{
			Level:  "info",
			Output: "console",
		},
	}
}

// LoadConfig 从指定路径加载配置文件并解析到Config结构体中。
// .yaml/.yml 按 YAML 解析，其余按 JSON 解析。
func LoadConfig(path string) (*models.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		err = json.Unmarshal(raw, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置中不允许出现的取值
func Validate(c *models.Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.InitialCapital <= 0 {
		return errors.New("initial_capital must be positive")
	}
	if c.MaxCapitalUsage <= 0 || c.MaxCapitalUsage > 1 {
		return errors.New("max_capital_usage must be in (0, 1]")
	}
	if c.SingleGridMaxRatio <= 0 || c.SingleGridMaxRatio > 1 {
		return errors.New("single_grid_max_ratio must be in (0, 1]")
	}
	if c.LotSize.Floor <= 0 || c.LotSize.Step <= 0 {
		return errors.New("lot_size.floor and lot_size.step must be positive")
	}
	if c.LotSize.Ceiling < c.LotSize.Floor {
		return errors.New("lot_size.ceiling must not be below lot_size.floor")
	}
	if c.Thresholds.MaxDrawdown < 0 || c.Thresholds.MinTradeCount < 0 || c.Thresholds.MinWinRate < 0 {
		return errors.New("thresholds must not be negative")
	}
	for name, grid := range map[string]models.ParameterGrid{
		"daily":    c.ParameterGrids.Daily,
		"intraday": c.ParameterGrids.Intraday,
	} {
		if err := validateGrid(grid); err != nil {
			return fmt.Errorf("parameter_grids.%s: %w", name, err)
		}
	}
	if c.Optimizer.RunTimeoutMs < 0 {
		return errors.New("optimizer.run_timeout_ms must not be negative")
	}
	return nil
}

func validateGrid(g models.ParameterGrid) error {
	if len(g.GridCounts) == 0 || len(g.DeviationMultipliers) == 0 ||
		len(g.ProfitMultipliers) == 0 || len(g.PositionSteps) == 0 {
		return errors.New("every axis needs at least one value")
	}
	for _, n := range g.GridCounts {
		if n <= 0 {
			return fmt.Errorf("grid count %d must be positive", n)
		}
	}
	for _, m := range g.DeviationMultipliers {
		if m <= 0 {
			return fmt.Errorf("deviation multiplier %v must be positive", m)
		}
	}
	return nil
}
