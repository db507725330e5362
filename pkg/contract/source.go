package contract

import "context"

// Source: 候选来源抽象（宿主图纸/表格/数据库）。
// 约束：
//  1. 一次性返回完整、有序的候选序列；顺序决定编码分配；
//  2. 不做尺寸解析或清洗，原样透传字符串；
//  3. 不在内部起并发；
//  4. ctx 取消/超时需尽快返回。
type Source interface {
	Fetch(ctx context.Context) ([]Candidate, error)
}

// Renamer: 将新名称回写到宿主（按 Handle 定位）。
// 约束：
//  1. 每个 RenamedItem 调用一次，顺序与候选一致；
//  2. 相同 NewName 允许重复写入；
//  3. 错误直接上抛（不做重试/回退）。
type Renamer interface {
	Apply(ctx context.Context, handle, newName string) error
}

// Closer: 可选扩展接口。持有外部资源（数据库连接等）的组件实现该接口，
// 由编排层在运行结束后释放。
type Closer interface {
	Close() error
}
