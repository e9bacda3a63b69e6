package protocol

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestSampleEncodesNonFiniteAsNull(t *testing.T) {
	msg := Message{
		RunID:  "r",
		Type:   MessageTypeSample,
		Sample: &Sample{Current: 0, Voltage: 1e-9, Resistance: math.NaN(), Field: math.Inf(1)},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	body := string(data)
	for _, want := range []string{`"resistance_ohm":null`, `"field_t":null`, `"current_a":0`, `"voltage_v":1e-9`} {
		if !strings.Contains(body, want) {
			t.Fatalf("encoded %s, missing %s", body, want)
		}
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !math.IsNaN(back.Sample.Resistance) || !math.IsNaN(back.Sample.Field) {
		t.Fatalf("null must decode to NaN, got %+v", *back.Sample)
	}
	if back.Sample.Voltage != 1e-9 || back.Sample.Current != 0 {
		t.Fatalf("finite values changed: %+v", *back.Sample)
	}
}
