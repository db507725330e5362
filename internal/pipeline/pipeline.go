package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"dimcode/internal/coding"
	"dimcode/internal/diag"
	"dimcode/internal/report"
	"dimcode/pkg/contract"
)

// - 单遍同步：fetch → assign → rename → build → encode → write，逐阶段完成后进入下一阶段。
// - 每次运行新建编码表；跨运行不缓存任何编码。
// - 首错即停：任一阶段出错立即返回（已完成的回写不回滚）。
// - 报表先完整编码到内存，再一次性交给 Writer。

// Components 聚合运行所需的组件。
type Components struct {
	Source  contract.Source
	Renamer contract.Renamer
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Output: 报表在 Writer 中的标识（相对路径或对象键）。
	Output contract.ArtifactID
}

// Result 运行摘要。
type Result struct {
	Candidates int
	Renamed    int
	Rows       int
	Groups     int
	Total      string
}

// Run 执行完整流程。
// 约束：
// - 组件均为同步实现，本层不起并发；
// - Renamer 按候选顺序逐项调用，每个候选一次；
// - 空候选集合照常产出仅含总计行的报表。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	var res Result
	if err := sanity(comp, set); err != nil {
		return res, fmt.Errorf("sanity: %w", err)
	}

	// fetch
	cands, err := fetch(ctx, comp.Source, logger)
	if err != nil {
		return res, err
	}
	res.Candidates = len(cands)
	warnUnparsable(cands, logger)

	// assign
	atimer := logger.Start("coding", "assign")
	items, tables := coding.AssignAll(cands)
	if len(items) != len(cands) {
		return res, fmt.Errorf("coding assign: %w: %d items for %d candidates", contract.ErrInvariantViolation, len(items), len(cands))
	}
	atimer.FinishWithKV("assign", int64(len(items)), map[string]string{
		"lengths": fmt.Sprint(tables.Lengths.Len()),
		"widths":  fmt.Sprint(tables.Widths.Len()),
	})
	diag.IncOp("coding", "finish", "success")
	stage("assign", len(items))

	// rename
	n, err := rename(ctx, comp.Renamer, items, logger)
	res.Renamed = n
	if err != nil {
		return res, err
	}

	// build + encode
	btimer := logger.Start("report", "build")
	rep := report.Build(items)
	var buf bytes.Buffer
	if err := report.Encode(&buf, rep); err != nil {
		code := diag.Classify(err)
		logger.Error("report", string(code), "encode failed", nil)
		countError("report", code)
		return res, fmt.Errorf("report encode: %w", err)
	}
	res.Rows = rep.Items()
	res.Groups = len(rep.Groups)
	res.Total = report.FormatArea(rep.Total)
	btimer.FinishWithKV("build", int64(res.Rows), map[string]string{
		"groups": fmt.Sprint(res.Groups),
		"total":  res.Total,
	})
	diag.IncOp("report", "finish", "success")
	stage("report", res.Rows)

	// write
	if err := write(ctx, comp.Writer, set.Output, &buf, logger); err != nil {
		return res, err
	}
	return res, nil
}

func fetch(ctx context.Context, src contract.Source, logger *diag.Logger) ([]contract.Candidate, error) {
	t0 := time.Now()
	timer := logger.Start("source", "fetch")
	cands, err := src.Fetch(ctx)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("source", string(code), "fetch failed", &t0)
		countError("source", code)
		return nil, fmt.Errorf("source fetch: %w", err)
	}
	timer.Finish("fetch", int64(len(cands)))
	diag.IncOp("source", "finish", "success")
	diag.ObserveDuration("source", "fetch", time.Since(t0).Milliseconds())
	stage("fetch", len(cands))
	return cands, nil
}

func rename(ctx context.Context, rn contract.Renamer, items []contract.RenamedItem, logger *diag.Logger) (int, error) {
	t0 := time.Now()
	timer := logger.Start("renamer", "apply")
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			logger.Error("renamer", string(diag.CodeCancel), "apply canceled", &t0)
			countError("renamer", diag.CodeCancel)
			return i, fmt.Errorf("renamer apply: %w", err)
		}
		logger.DebugStart("renamer", "apply", map[string]string{"handle": it.Handle, "new_name": it.NewName})
		if err := rn.Apply(ctx, it.Handle, it.NewName); err != nil {
			code := diag.Classify(err)
			logger.ErrorWithKV("renamer", string(code), "apply failed", &t0, map[string]string{
				"handle":   it.Handle,
				"new_name": it.NewName,
			})
			countError("renamer", code)
			return i, fmt.Errorf("renamer apply %q: %w", it.Handle, err)
		}
	}
	timer.Finish("apply", int64(len(items)))
	diag.IncOp("renamer", "finish", "success")
	diag.ObserveDuration("renamer", "apply", time.Since(t0).Milliseconds())
	stage("rename", len(items))
	return len(items), nil
}

func write(ctx context.Context, w contract.Writer, id contract.ArtifactID, buf *bytes.Buffer, logger *diag.Logger) error {
	t0 := time.Now()
	size := buf.Len()
	timer := logger.StartWithKV("writer", "write", map[string]string{"artifact": string(id)})
	if err := w.Write(ctx, id, buf); err != nil {
		code := diag.Classify(err)
		logger.ErrorWithKV("writer", string(code), "write failed", &t0, map[string]string{"artifact": string(id)})
		countError("writer", code)
		return fmt.Errorf("writer write: %w", err)
	}
	timer.Finish("write", int64(size))
	diag.IncOp("writer", "finish", "success")
	diag.ObserveDuration("writer", "write", time.Since(t0).Milliseconds())
	return nil
}

// warnUnparsable 汇总无法解析的尺寸（编码按原样键、面积计 0）。
func warnUnparsable(cands []contract.Candidate, logger *diag.Logger) {
	bad, first := 0, ""
	for _, c := range cands {
		if coding.Parsable(c.LengthRaw) && coding.Parsable(c.WidthRaw) {
			continue
		}
		if bad == 0 {
			first = c.Handle
		}
		bad++
	}
	if bad > 0 {
		logger.Warn("coding", "unparsable dimensions", map[string]string{
			"count":        fmt.Sprint(bad),
			"first_handle": first,
		})
	}
}

func countError(comp string, code diag.Code) {
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func stage(name string, n int) {
	if t := diag.GetTerminal(); t != nil {
		t.Stage(name, n)
	}
}

func sanity(comp Components, set Settings) error {
	if comp.Source == nil {
		return errors.New("source is nil")
	}
	if comp.Renamer == nil {
		return errors.New("renamer is nil")
	}
	if comp.Writer == nil {
		return errors.New("writer is nil")
	}
	if id := contract.NormalizeArtifactID(string(set.Output)); id == "" || id == "." {
		return fmt.Errorf("%w: output artifact id empty", contract.ErrInvalidInput)
	}
	return nil
}

// Close 释放实现了 contract.Closer 的组件；同一实例只关闭一次。
func Close(comp Components) error {
	seen := map[any]bool{}
	var errs []error
	for _, c := range []any{comp.Source, comp.Renamer, comp.Writer} {
		cl, ok := c.(contract.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
