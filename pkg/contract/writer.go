package contract

import (
	"context"
	"io"
)

// ArtifactID: 报表工件标识（通常为相对路径或对象键，需规范化）。
type ArtifactID string

// Writer: 将报表以流式方式持久化到目标介质（文件系统/对象存储等）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改报表内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
