package coding

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// decimalRe: 仅接受小数点十进制（可带指数）；拒绝十六进制、下划线分隔与 Inf/NaN 字面量。
var decimalRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Normalize 将原始尺寸字符串转换为编码表的查找键。
// 规则：
// - 去首尾空白后按十进制小数点格式解析（与区域设置无关；十六进制、下划线分隔视为不可解析）；
// - 有限值按 math.Round 取整（半数远离零：2.5→3，-2.5→-3），输出不带指数的整数串；
// - 解析失败或非有限值（NaN/Inf）时原样返回 raw（不去空白）。
//
// 因此 "10" 与 "10.0" 归一为同一键，而 "10mm" 与 "10" 是不同的键。
func Normalize(raw string) string {
	v, ok := ParseDimension(raw)
	if !ok {
		return raw
	}
	r := math.Round(v)
	if r == 0 {
		// 折叠 -0
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}

// ParseDimension 按与区域无关的小数点格式解析尺寸（去首尾空白）；仅接受有限值。
// 编码键与面积计算共用此规则。
func ParseDimension(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if !decimalRe.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Parsable 报告 raw 是否为可解析的有限数值（不可解析时 Normalize 走回退）。
func Parsable(raw string) bool {
	_, ok := ParseDimension(raw)
	return ok
}
