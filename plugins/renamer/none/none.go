// Package none 提供空回写实现：只计数，不触碰宿主（用于 dry-run）。
package none

import (
	"context"
	"sync/atomic"

	"dimcode/pkg/contract"
)

type Options struct{}

// Renamer 实现 contract.Renamer。
type Renamer struct {
	n atomic.Int64
}

var _ contract.Renamer = (*Renamer)(nil)

func New(_ *Options) (*Renamer, error) { return &Renamer{}, nil }

func (r *Renamer) Apply(ctx context.Context, _ string, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.n.Add(1)
	return nil
}

// Count 返回已“回写”的次数。
func (r *Renamer) Count() int64 { return r.n.Load() }
