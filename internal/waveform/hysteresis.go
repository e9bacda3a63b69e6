package waveform

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRange 起止值与步长无法生成至少一个点
	ErrInvalidRange = errors.New("invalid range or step")
	// ErrUnknownTopology 未知的扫场类型
	ErrUnknownTopology = errors.New("unknown sweep topology")
)

// MaxPoints 单段序列允许的最大点数
const MaxPoints = 1_000_000

// Topology 回线扫场类型
type Topology string

const (
	// B1 从0开始, 完整一圈后回到0
	B1 Topology = "B1"
	// B2 从0开始, 一又四分之一圈, 结束于最大场
	B2 Topology = "B2"
	// B3 从最大场开始, 完整一圈后结束于最大场
	B3 Topology = "B3"
)

// Topologies 返回全部扫场类型
func Topologies() []Topology {
	return []Topology{B1, B2, B3}
}

// ParseTopology 解析扫场类型
func ParseTopology(s string) (Topology, error) {
	for _, t := range Topologies() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTopology, s)
}

// Waveform 一次扫场的设定点序列
//
// PrePassover 与 PostPassover 只用于把磁场带到起点或送回0, 不采样, 为 nil 表示不存在.
type Waveform struct {
	Sweep        []float64
	PrePassover  []float64
	PostPassover []float64
}

// Len 返回所有段的设定点总数
func (w Waveform) Len() int {
	return len(w.PrePassover) + len(w.Sweep) + len(w.PostPassover)
}

// Linear 生成从 start 到 stop (含端点) 的等间距序列
func Linear(start, stop, step float64) ([]float64, error) {
	if step == 0 || !finite(start) || !finite(stop) || !finite(step) {
		return nil, fmt.Errorf("%w: start=%g stop=%g step=%g", ErrInvalidRange, start, stop, step)
	}

	ratio := math.Round((stop - start) / step)
	if !finite(ratio) {
		return nil, fmt.Errorf("%w: start=%g stop=%g step=%g", ErrInvalidRange, start, stop, step)
	}
	if math.Abs(ratio) >= MaxPoints {
		return nil, fmt.Errorf("%w: more than %d points: start=%g stop=%g step=%g",
			ErrInvalidRange, MaxPoints, start, stop, step)
	}
	n := int(math.Abs(ratio)) + 1
	if n < 1 {
		return nil, fmt.Errorf("%w: %d points", ErrInvalidRange, n)
	}

	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out, nil
	}
	delta := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*delta
	}
	out[n-1] = stop
	return out, nil
}

// Generate 按扫场类型生成回线设定点
func Generate(low, high, step float64, topology Topology) (Waveform, error) {
	if !(step > 0) {
		return Waveform{}, fmt.Errorf("%w: step must be > 0: %g", ErrInvalidRange, step)
	}
	if high < low {
		return Waveform{}, fmt.Errorf("%w: max %g < min %g", ErrInvalidRange, high, low)
	}

	up, err := Linear(0, high, step)
	if err != nil {
		return Waveform{}, err
	}
	down, err := Linear(high-step, low, -step)
	if err != nil {
		return Waveform{}, err
	}
	up2, err := Linear(low+step, high, step)
	if err != nil {
		return Waveform{}, err
	}
	down2, err := Linear(high-step, 0, -step)
	if err != nil {
		return Waveform{}, err
	}

	switch topology {
	case B1:
		back, err := Linear(low+step, 0, step)
		if err != nil {
			return Waveform{}, err
		}
		return Waveform{Sweep: concat(up, down, back)}, nil
	case B2:
		return Waveform{Sweep: concat(up, down, up2), PostPassover: down2}, nil
	case B3:
		return Waveform{Sweep: concat(down, up2), PrePassover: up, PostPassover: down2}, nil
	default:
		return Waveform{}, fmt.Errorf("%w: %q", ErrUnknownTopology, topology)
	}
}

// Tabular 拼接多段线性扫描, 相邻段首尾重复的点只保留一个
func Tabular(starts, stops, steps []float64) ([]float64, error) {
	if len(starts) != len(stops) || len(starts) != len(steps) {
		return nil, fmt.Errorf("%w: %d starts, %d stops, %d steps", ErrInvalidRange, len(starts), len(stops), len(steps))
	}

	var out []float64
	for i := range starts {
		seg, err := Linear(starts[i], stops[i], steps[i])
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if len(out) > 0 && seg[0] == out[len(out)-1] {
			seg = seg[1:]
		}
		out = append(out, seg...)
	}
	return out, nil
}

func concat(parts ...[]float64) []float64 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
