package coding

// CodeTable: 归一化尺寸值 → 序号（从 0 起，按首次出现顺序分配）。
// 单次运行内只增不减；不跨运行复用。
type CodeTable struct {
	index map[string]int
	keys  []string
}

// NewCodeTable 创建空表。
func NewCodeTable() *CodeTable {
	return &CodeTable{index: make(map[string]int)}
}

// Index 返回 key 的序号；首次出现时分配下一个序号并返回 added=true。
func (t *CodeTable) Index(key string) (idx int, added bool) {
	if i, ok := t.index[key]; ok {
		return i, false
	}
	i := len(t.keys)
	t.index[key] = i
	t.keys = append(t.keys, key)
	return i, true
}

// Lookup 查询 key 的序号，不分配。
func (t *CodeTable) Lookup(key string) (int, bool) {
	i, ok := t.index[key]
	return i, ok
}

// Len 返回已分配的键数量。
func (t *CodeTable) Len() int { return len(t.keys) }

// Keys 返回按序号排列的键（副本）。
func (t *CodeTable) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}
