package irt

import "math"

// Calibrator 根据累计作答统计重新校准题目难度。
// 经典测验理论的对数几率估计经指数移动平均平滑，避免新题早期少量样本造成剧烈波动。
type Calibrator struct {
	alpha float64
}

func NewCalibrator(alpha float64) *Calibrator {
	if !(alpha > 0 && alpha <= 1) {
		alpha = DefaultSmoothingAlpha
	}
	return &Calibrator{alpha: alpha}
}

// Recalibrate 返回新的难度。通过率为 0 或 1 时对数几率无定义，原样返回 current；
// 输入违反 attempts ≥ 1、0 ≤ correct ≤ attempts 时同样原样返回。
func (c *Calibrator) Recalibrate(current float64, attempts, correct int) float64 {
	if attempts < 1 || correct <= 0 || correct >= attempts {
		return current
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return current
	}
	p := float64(correct) / float64(attempts)
	estimated := math.Log((1 - p) / p)
	return Round3(c.alpha*estimated + (1-c.alpha)*current)
}

// Band 按能力值划分的熟练度区间
type Band string

const (
	BandFoundation Band = "foundation"
	BandDeveloping Band = "developing"
	BandProficient Band = "proficient"
	BandAdvanced   Band = "advanced"
)

func BandFor(ability float64) Band {
	switch {
	case ability < -1:
		return BandFoundation
	case ability < 0.5:
		return BandDeveloping
	case ability < 2:
		return BandProficient
	default:
		return BandAdvanced
	}
}

// RecommendedDifficulty 推荐难度等于当前能力，此时答对概率为 0.5
func RecommendedDifficulty(ability float64) float64 {
	return Round3(ability)
}
