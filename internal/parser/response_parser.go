// Package parser 解析仪器返回的 ASCII 应答
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyResponse 仪器没有返回内容
var ErrEmptyResponse = errors.New("empty instrument response")

// Clean 去掉应答两端的空白和终止符
func Clean(resp string) string {
	return strings.Trim(resp, " \t\r\n\x00")
}

// ParseFloat 解析单个数值, 兼容 "+1.234E-03" 与带单位后缀的应答
func ParseFloat(resp string) (float64, error) {
	s := Clean(resp)
	if s == "" {
		return 0, ErrEmptyResponse
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}

	// 部分仪器附带单位, 例如 "1.234E-3VDC"
	end := len(s)
	for end > 0 && !isNumberByte(s[end-1]) {
		end--
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("数值解析失败 %q: %w", s, err)
	}
	return v, nil
}

// ParseFloatList 按逗号或分号拆分并解析多个数值
func ParseFloatList(resp string) ([]float64, error) {
	s := Clean(resp)
	if s == "" {
		return nil, ErrEmptyResponse
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := ParseFloat(f)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个字段: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseBool 解析 0/1 或 ON/OFF
func ParseBool(resp string) (bool, error) {
	switch strings.ToUpper(Clean(resp)) {
	case "1", "ON", "+1":
		return true, nil
	case "0", "OFF", "+0":
		return false, nil
	case "":
		return false, ErrEmptyResponse
	}
	return false, fmt.Errorf("布尔值解析失败 %q", resp)
}

func isNumberByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}
