// Package report 将编码后的构件按前缀分组、合并同名项，并计算面积汇总。
package report

import (
	"sort"
	"strconv"
	"strings"

	"dimcode/internal/coding"
	"dimcode/pkg/contract"
)

// areaScale: 尺寸单位为毫米，面积输出为平方米。
const areaScale = 1_000_000

// Row: 同组内按 NewName 合并后的一行。
type Row struct {
	Name     string
	Length   string
	Width    string
	Quantity int
	Area     float64
}

// Group: 共享同一前缀的行集合（行按首次出现顺序）。
type Group struct {
	Prefix   string
	Rows     []Row
	Subtotal float64
}

// Report: 按前缀升序排列的分组与总计。
type Report struct {
	Groups []Group
	Total  float64
}

// Items 返回合并后的行数（所有组）。
func (r Report) Items() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Rows)
	}
	return n
}

// Prefix 取 id 中最后一个 '-' 之前的部分；该 '-' 不存在或位于首位时返回整个 id。
func Prefix(id string) string {
	if i := strings.LastIndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// Area 计算 length*width*qty/1e6；任一尺寸不可解析（或非有限）时为 0。
func Area(length, width string, qty int) float64 {
	l, ok := coding.ParseDimension(length)
	if !ok {
		return 0
	}
	w, ok := coding.ParseDimension(width)
	if !ok {
		return 0
	}
	return l * w * float64(qty) / areaScale
}

// FormatArea 以两位小数定点格式输出（对二进制精确值正确舍入，恰为中点时取偶）。
func FormatArea(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Build 对完整的 RenamedItem 序列分组、合并并汇总。
func Build(items []contract.RenamedItem) Report {
	type acc struct {
		rows  []Row
		index map[string]int
	}
	groups := make(map[string]*acc)
	for _, it := range items {
		p := Prefix(it.OriginalID)
		g, ok := groups[p]
		if !ok {
			g = &acc{index: make(map[string]int)}
			groups[p] = g
		}
		if i, seen := g.index[it.NewName]; seen {
			g.rows[i].Quantity++
			continue
		}
		g.index[it.NewName] = len(g.rows)
		g.rows = append(g.rows, Row{Name: it.NewName, Length: it.Length, Width: it.Width, Quantity: 1})
	}

	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	rep := Report{Groups: make([]Group, 0, len(prefixes))}
	for _, p := range prefixes {
		g := Group{Prefix: p, Rows: groups[p].rows}
		for i := range g.Rows {
			r := &g.Rows[i]
			r.Area = Area(r.Length, r.Width, r.Quantity)
			g.Subtotal += r.Area
		}
		rep.Total += g.Subtotal
		rep.Groups = append(rep.Groups, g)
	}
	return rep
}
