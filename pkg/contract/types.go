package contract

// Candidate: 由宿主协作方提供的单个构件实例（只读输入）。
// 约束：
// - Handle 为宿主侧不透明引用（行号/对象句柄），核心不解释，仅回传给 Renamer；
// - OriginalID 可为空，可重复（同名构件多次出现）；
// - LengthRaw/WidthRaw 为原始尺寸字符串，可能为空或非数字。
type Candidate struct {
	Handle     string `json:"handle"`
	OriginalID string `json:"original_id"`
	LengthRaw  string `json:"length"`
	WidthRaw   string `json:"width"`
}

// RenamedItem: 编码后的构件（创建后不可变）。
// NewName = OriginalID + "-" + 长度码 + "-" + 宽度码。
// Length/Width 保留候选的原始字符串，面积按其数值计算。
type RenamedItem struct {
	Handle     string `json:"handle"`
	OriginalID string `json:"original_id"`
	NewName    string `json:"new_name"`
	Length     string `json:"length"`
	Width      string `json:"width"`
}
