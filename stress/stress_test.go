package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "dimcode/internal/config"
	"dimcode/internal/pipeline"
)

// baseConfig 构造可运行的最小配置（csv → none → fs）。
func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Logging.Level = "error"
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":true,"perm_file":0,"perm_dir":0,"buf_size":65536}`, outDir))
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(t *testing.T, cfg cfgpkg.Config) (pipeline.Result, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer pipeline.Close(comp)
	return pipeline.Run(context.Background(), comp, set, nil)
}

// genParts 生成 n 行候选：宽度取值超过三字母编码空间，前缀分布在 groups 组。
func genParts(path string, n, groups int) error {
	var b strings.Builder
	b.WriteString("name,length,width\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "G%03d-%d,%d,%d\n", i%groups, i, 100+i%997, 10+i)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// TestStress 在不同规模下运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress skipped in -short")
	}
	sizes := []int{1_000, 20_000, 100_000}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("rows_%d", n), func(t *testing.T) {
			dir := t.TempDir()
			in := filepath.Join(dir, "parts.csv")
			if err := genParts(in, n, 64); err != nil {
				t.Fatalf("gen input: %v", err)
			}
			const runs = 3
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				outDir := filepath.Join(dir, fmt.Sprintf("out-%d", i))
				start := time.Now()
				res, err := runPipeline(t, baseConfig(in, outDir))
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				// 每行名称唯一：合并后行数等于输入行数
				if res.Rows != n {
					t.Errorf("run %d: rows=%d want %d", i, res.Rows, n)
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("行数%d 成功率%.2f 平均%v 95%%延迟%v", n, float64(successes)/float64(runs), avg, p95)
		})
	}
}
