// Package irt 实现 Rasch（单参数 IRT）模型：答对概率、能力估计与题目难度校准。
// 包内函数均为纯计算，不做任何 I/O。
package irt

import (
	"fmt"
	"math"
)

// 概率上界。exp(-x) 在 x > 37 左右时相对 1 可忽略，直接计算会得到 1.0，
// 这里收在 (0,1) 开区间内。
var maxProbability = math.Nextafter(1, 0)

// DomainError 表示数值输入非法（NaN 或 ±Inf）。
type DomainError struct {
	Op    string
	Arg   string
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("irt: %s: %s must be finite, got %v", e.Op, e.Arg, e.Value)
}

func checkFinite(op, arg string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &DomainError{Op: op, Arg: arg, Value: v}
	}
	return nil
}

// ProbabilityCorrect 返回能力为 ability 的学生答对难度为 difficulty 的题目的概率：
// 1 / (1 + exp(-(ability - difficulty)))
func ProbabilityCorrect(ability, difficulty float64) (float64, error) {
	if err := checkFinite("probability", "ability", ability); err != nil {
		return 0, err
	}
	if err := checkFinite("probability", "difficulty", difficulty); err != nil {
		return 0, err
	}
	return logistic(ability - difficulty), nil
}

// logistic 按 x 的符号分支，避免 exp 溢出。
func logistic(x float64) float64 {
	var p float64
	if x >= 0 {
		p = 1 / (1 + math.Exp(-x))
	} else {
		e := math.Exp(x)
		p = e / (1 + e)
	}
	if p > maxProbability {
		return maxProbability
	}
	if p <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return p
}

// Information 为 Fisher 信息量 p(1-p)，p=0.5 时取最大值。
func Information(p float64) float64 {
	return p * (1 - p)
}
