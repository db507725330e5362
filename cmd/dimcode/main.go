package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "dimcode/internal/config"
	"dimcode/internal/diag"
	"dimcode/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// cliFlags: 命令行旗标（仅非空/显式设置时覆盖配置）。
type cliFlags struct {
	config   string
	output   string
	source   string
	renamer  string
	writer   string
	logLevel string
	initDir  string
	status   bool
	dryRun   bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 解析命令行并执行；返回进程退出码。
func run(args []string) int {
	var (
		f    cliFlags
		code = exitOK
	)
	cmd := newRootCmd(&f, func(inputs []string) { code = execute(f, inputs) })
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		// 旗标/参数解析错误
		fprintf(os.Stderr, "参数错误: %v\n", err)
		return exitConfig
	}
	return code
}

func newRootCmd(f *cliFlags, exec func(inputs []string)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dimcode [input...]",
		Short: "按尺寸为构件编码重命名并生成分组面积汇总 CSV",
		Long: `dimcode 读取构件候选（名称、长、宽），为每个不同的长度分配数字编码、
为每个不同的宽度分配字母编码，回写新名称 <名称>-<长度码>-<宽度码>，
并输出按前缀分组的数量与面积（m²）汇总表。

位置参数为输入（csv: 文件/目录或 "-" 表示 STDIN；sqlite: 数据库文件），覆盖配置中的输入。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec(args)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（.json/.yaml/.yml）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	fl.StringVarP(&f.output, "output", "o", "", "报表标识（文件相对路径或对象键，覆盖配置）")
	fl.StringVar(&f.source, "source", "", "候选来源组件名（csv|sqlite）")
	fl.StringVar(&f.renamer, "renamer", "", "回写组件名（none|sqlite）")
	fl.StringVar(&f.writer, "writer", "", "报表输出组件名（fs|s3）")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别（debug|info|warn|error）")
	fl.StringVar(&f.initDir, "init-config", "", "在指定目录生成默认 config.json 与 .env 模板（已存在则跳过，不覆盖）；不带值时为当前目录")
	fl.Lookup("init-config").NoOptDefVal = "."
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只生成报表，不回写名称（强制 renamer=none）")
	return cmd
}

func execute(f cliFlags, inputs []string) int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fprintf(os.Stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level
	logger := diag.NewLogger(corrID, "info")
	defer func() { _ = logger.Sync() }()

	// --init-config: 生成模板并退出
	if dir := strings.TrimSpace(f.initDir); dir != "" {
		if err := initConfig(dir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("cli", string(diag.Classify(err)), "init-config failed", &start)
			return exitConfig
		}
		return exitOK
	}

	cfg, err := loadConfig(f, inputs)
	if err != nil {
		fprintf(os.Stderr, "%v\n", err)
		logger.Error("config", string(diag.Classify(err)), "load failed", &start)
		return exitConfig
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 打印有效配置，便于诊断
		_ = dumpConfig(os.Stderr, cfg)
		logger.Error("config", string(diag.Classify(err)), "validate failed", &start)
		return exitConfig
	}

	// 使用最终配置中的日志级别重建 logger
	_ = logger.Sync()
	logger = diag.NewLogger(corrID, cfg.Logging.Level)

	// 预检：若使用文件系统 Writer，检查输出目录的可写性
	if err := preflightOutputDir(cfg); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("writer", string(diag.Classify(err)), "preflight failed", &start)
		return exitConfig
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return exitConfig
	}
	defer func() {
		if err := pipeline.Close(comp); err != nil {
			logger.Error("pipeline", string(diag.Classify(err)), "close failed", nil)
		}
	}()

	sn, rn, wn := cfgpkg.EffectiveNames(cfg)
	logger.DebugStart("config", "effective", map[string]string{
		"inputs_count": fmt.Sprint(len(cfg.Inputs)),
		"output":       string(set.Output),
		"source":       sn,
		"renamer":      rn,
		"writer":       wn,
	})

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(os.Stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(sn, rn, wn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := logger.Start("pipeline", "run")
	res, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		term.RunFinish(false, 0, "", time.Since(start))
		return exitRuntime
	}
	t.FinishWithKV("run", int64(res.Candidates), map[string]string{
		"groups": fmt.Sprint(res.Groups),
		"total":  res.Total,
	})
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, res.Groups, res.Total, time.Since(start))
	return exitOK
}

// loadConfig 依优先级合并：默认 < 配置文件/DIMCODE_CONFIG_JSON < DIMCODE_* ENV < CLI。
func loadConfig(f cliFlags, inputs []string) (cfgpkg.Config, error) {
	path := f.config
	if path == "" {
		path = os.Getenv("DIMCODE_CONFIG_FILE")
	}
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := cfgpkg.Defaults()
	switch raw := os.Getenv("DIMCODE_CONFIG_JSON"); {
	case raw != "":
		base, err := cfgpkg.LoadJSON("", []byte(raw))
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败（DIMCODE_CONFIG_JSON）: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	case path != "":
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败（%s）: %w", path, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（最小集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	overCLI := cfgpkg.Config{
		Inputs:  inputs,
		Output:  f.output,
		Logging: cfgpkg.Logging{Level: f.logLevel},
		Components: cfgpkg.Components{
			Source:  f.source,
			Renamer: f.renamer,
			Writer:  f.writer,
		},
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	if f.dryRun {
		cfg.Components.Renamer = "none"
		cfg.Options.Renamer = nil
	}
	return cfg, nil
}

func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
		return err
	}
	// .env 失败不影响 config.json 结果
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fprintf(w, "有效配置:\n%s\n", b)
	return nil
}

// writeConfig 写出配置模板；已存在的文件不覆盖（视为成功跳过）。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return createExclusive(path, append(b, '\n'))
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	return createExclusive(path, []byte(cfgpkg.EnvTemplate()))
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// preflightOutputDir: Writer 为 fs 且给出 output_dir 时，启动前确认目录可写。
// - 目录存在：创建并删除一个临时文件；
// - 目录不存在：在最近的已存在祖先目录中创建并删除一个临时目录。
func preflightOutputDir(cfg cfgpkg.Config) error {
	if _, _, wn := cfgpkg.EffectiveNames(cfg); wn != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		return nil
	}
	for {
		st, err := os.Stat(dir)
		switch {
		case err == nil && st.IsDir():
			return probe(dir)
		case err == nil:
			return fmt.Errorf("路径存在但不是目录: %s", dir)
		case !os.IsNotExist(err):
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		dir = parent
	}
}

func probe(dir string) error {
	tmp, err := os.MkdirTemp(dir, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmp)
}
