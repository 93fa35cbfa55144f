package irt

import (
	"math"
)

const (
	DefaultMaxIterations  = 25
	DefaultTolerance      = 0.001
	DefaultLearningRate   = 0.5
	DefaultSmoothingAlpha = 0.1
	MinAbility            = -4.0
	MaxAbility            = 4.0
)

// 信息量低于该值视为零（所有预测都饱和在 0 或 1）。
const minInformation = 1e-12

// 单次 Newton 步长上限（logit）。从截断边界出发时信息量很小，
// 不限步长会在 ±MaxAbility 之间来回跳。不改变收敛点。
const maxNewtonStep = 1.0

// Response 一道题的作答结果
type Response struct {
	Difficulty float64
	Correct    bool
}

// Settings 估计器与校准器的可调参数
type Settings struct {
	MaxIterations  int
	Tolerance      float64
	LearningRate   float64
	SmoothingAlpha float64
	MinAbility     float64
	MaxAbility     float64
}

func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  DefaultMaxIterations,
		Tolerance:      DefaultTolerance,
		LearningRate:   DefaultLearningRate,
		SmoothingAlpha: DefaultSmoothingAlpha,
		MinAbility:     MinAbility,
		MaxAbility:     MaxAbility,
	}
}

// normalize 用默认值补齐未设置或非法的字段
func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if !(s.Tolerance > 0) {
		s.Tolerance = d.Tolerance
	}
	if !(s.LearningRate > 0) {
		s.LearningRate = d.LearningRate
	}
	if !(s.SmoothingAlpha > 0 && s.SmoothingAlpha <= 1) {
		s.SmoothingAlpha = d.SmoothingAlpha
	}
	if !(s.MinAbility < s.MaxAbility) {
		s.MinAbility, s.MaxAbility = d.MinAbility, d.MaxAbility
	}
	return s
}

// Estimate 批量估计的结果
type Estimate struct {
	Ability    float64
	Iterations int
	Converged  bool
}

// Estimator 学生能力估计。批量 Newton-Raphson 极大似然是唯一的标准口径，
// 单题更新也走一元素批量。
type Estimator struct {
	settings Settings
}

func NewEstimator(settings Settings) *Estimator {
	return &Estimator{settings: settings.normalize()}
}

func (e *Estimator) Settings() Settings {
	return e.settings
}

// Clamp 把能力值限制在 [MinAbility, MaxAbility]
func (e *Estimator) Clamp(ability float64) float64 {
	return math.Max(e.settings.MinAbility, math.Min(e.settings.MaxAbility, ability))
}

// EstimateAbility 以 current 为起点，对一次提交的全部作答做极大似然估计。
// 空作答列表原样返回 current。
func (e *Estimator) EstimateAbility(current float64, responses []Response) (float64, error) {
	est, err := e.EstimateAbilityDetailed(current, responses)
	if err != nil {
		return 0, err
	}
	return est.Ability, nil
}

func (e *Estimator) EstimateAbilityDetailed(current float64, responses []Response) (Estimate, error) {
	if err := checkFinite("estimate ability", "ability", current); err != nil {
		return Estimate{}, err
	}
	for _, r := range responses {
		if err := checkFinite("estimate ability", "difficulty", r.Difficulty); err != nil {
			return Estimate{}, err
		}
	}
	if len(responses) == 0 {
		return Estimate{Ability: current, Converged: true}, nil
	}

	ability := e.Clamp(current)
	est := Estimate{}
	for i := 0; i < e.settings.MaxIterations; i++ {
		est.Iterations = i + 1

		var sumResidual, sumInformation float64
		for _, r := range responses {
			p := logistic(ability - r.Difficulty)
			sumResidual += observed(r.Correct) - p
			sumInformation += Information(p)
		}
		if sumInformation < minInformation {
			break
		}

		step := math.Max(-maxNewtonStep, math.Min(maxNewtonStep, sumResidual/sumInformation))
		next := e.Clamp(ability + step)
		delta := next - ability
		ability = next
		if math.Abs(delta) < e.settings.Tolerance {
			est.Converged = true
			break
		}
	}

	est.Ability = Round3(e.Clamp(ability))
	return est, nil
}

// UpdateSingle 单题更新，等价于一元素批量估计。
// 一道题的似然没有内部极值，答对收敛到 MaxAbility，答错收敛到 MinAbility。
func (e *Estimator) UpdateSingle(current float64, r Response) (float64, error) {
	return e.EstimateAbility(current, []Response{r})
}

// GradientStep 固定学习率的单步随机梯度更新：ability + k·(observed - predicted)。
// 仅作为旧版诊断流程的参考口径保留；在批量极大似然估计处期望漂移为零。
func (e *Estimator) GradientStep(current float64, r Response) (float64, error) {
	p, err := ProbabilityCorrect(current, r.Difficulty)
	if err != nil {
		return 0, err
	}
	return e.Clamp(current + e.settings.LearningRate*(observed(r.Correct)-p)), nil
}

func observed(correct bool) float64 {
	if correct {
		return 1
	}
	return 0
}

// Round3 保留三位小数，保证存储值稳定
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
