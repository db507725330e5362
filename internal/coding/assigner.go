package coding

import (
	"strconv"

	"dimcode/pkg/contract"
)

// Tables: 一次运行产生的两张编码表（仅供调试/测试观察）。
type Tables struct {
	Lengths *CodeTable
	Widths  *CodeTable
}

// Assigner 是单次运行的编码累加器。
// 长度码：序号+1 的十进制串；宽度码：序号的双射 26 进制字母码。
// 两套编号互相独立。非并发安全，每次运行新建。
type Assigner struct {
	lengths *CodeTable
	widths  *CodeTable
}

// NewAssigner 创建带空编码表的累加器。
func NewAssigner() *Assigner {
	return &Assigner{lengths: NewCodeTable(), widths: NewCodeTable()}
}

// Assign 为单个候选分配编码并生成新名称；归一化先于查表。
func (a *Assigner) Assign(c contract.Candidate) contract.RenamedItem {
	li, _ := a.lengths.Index(Normalize(c.LengthRaw))
	wi, _ := a.widths.Index(Normalize(c.WidthRaw))
	return contract.RenamedItem{
		Handle:     c.Handle,
		OriginalID: c.OriginalID,
		NewName:    c.OriginalID + "-" + strconv.Itoa(li+1) + "-" + ColumnCode(wi),
		Length:     c.LengthRaw,
		Width:      c.WidthRaw,
	}
}

// Tables 返回当前编码表。
func (a *Assigner) Tables() Tables {
	return Tables{Lengths: a.lengths, Widths: a.widths}
}

// AssignAll 以全新的编码表顺序处理候选，输出与输入等长同序。
func AssignAll(cands []contract.Candidate) ([]contract.RenamedItem, Tables) {
	a := NewAssigner()
	out := make([]contract.RenamedItem, 0, len(cands))
	for _, c := range cands {
		out = append(out, a.Assign(c))
	}
	return out, a.Tables()
}
