package protocol

import (
	"encoding/json"
	"math"
	"time"
)

// Sample 单个采样点
//
// JSON 中 NaN 和 ±Inf 编码为 null, 解码时 null 还原为 NaN.
type Sample struct {
	Field      float64
	Current    float64
	Voltage    float64
	Resistance float64
}

type sampleJSON struct {
	Field      *float64 `json:"field_t"`
	Current    *float64 `json:"current_a"`
	Voltage    *float64 `json:"voltage_v"`
	Resistance *float64 `json:"resistance_ohm"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Field:      finite(s.Field),
		Current:    finite(s.Current),
		Voltage:    finite(s.Voltage),
		Resistance: finite(s.Resistance),
	})
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var w sampleJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Sample{
		Field:      orNaN(w.Field),
		Current:    orNaN(w.Current),
		Voltage:    orNaN(w.Voltage),
		Resistance: orNaN(w.Resistance),
	}
	return nil
}

// Message 发布到消息队列的数据结构
type Message struct {
	RunID      string    `json:"run_id"`
	SampleName string    `json:"sample_name"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Index      int       `json:"index,omitempty"`
	Sample     *Sample   `json:"sample,omitempty"`
	Progress   float64   `json:"progress,omitempty"`
	State      string    `json:"state,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// 消息类型
const (
	MessageTypeSample   = "sample"
	MessageTypeProgress = "progress"
	MessageTypeState    = "state"
)
