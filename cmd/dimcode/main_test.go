package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	cfgpkg "dimcode/internal/config"
	"dimcode/internal/diag"
	"dimcode/internal/pipeline"
	"dimcode/pkg/contract"
)

const partsCSV = "name,length,width\n" +
	"P1,1200,500\n" +
	"P2,800,300\n" +
	"P1,1200.4,500\n"

const wantReport = "Group,P1\n" +
	"Name,Length,Width,Quantity,Area (m²)\n" +
	"P1-1-A,1200,500,2,1.20\n" +
	"Subtotal,,,,1.20\n" +
	"\n" +
	"Group,P2\n" +
	"Name,Length,Width,Quantity,Area (m²)\n" +
	"P2-2-B,800,300,1,0.24\n" +
	"Subtotal,,,,0.24\n" +
	"\n" +
	"Total,,,,1.44\n"

// workdir 切换到临时目录（日志写入其 logs/ 下）。
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func writerTo(t *testing.T, dir string) {
	t.Helper()
	b, _ := json.Marshal(map[string]any{"output_dir": dir})
	t.Setenv("DIMCODE_OPTIONS_WRITER_JSON", string(b))
}

func TestRunEndToEndCSV(t *testing.T) {
	dir := workdir(t)
	in := filepath.Join(dir, "parts.csv")
	require.NoError(t, os.WriteFile(in, []byte(partsCSV), 0o644))
	out := filepath.Join(dir, "out")
	writerTo(t, out)

	code := run([]string{in, "--status=false", "-o", "summary.csv"})
	require.Equal(t, exitOK, code)

	got, err := os.ReadFile(filepath.Join(out, "summary.csv"))
	require.NoError(t, err)
	assert.Equal(t, wantReport, string(got))
}

func seedDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range []string{
		`CREATE TABLE components (name TEXT, length TEXT, width TEXT)`,
		`INSERT INTO components VALUES ('P1','1200','500'), ('P2','800','300'), ('P1','1200.4','500')`,
	} {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func names(t *testing.T, path string) []string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Query(`SELECT name FROM components ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		out = append(out, n)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestRunSqliteRenames(t *testing.T) {
	dir := workdir(t)
	db := filepath.Join(dir, "parts.db")
	seedDB(t, db)
	writerTo(t, dir)

	code := run([]string{"--source", "sqlite", "--renamer", "sqlite", "--status=false", db})
	require.Equal(t, exitOK, code)
	assert.Equal(t, []string{"P1-1-A", "P2-2-B", "P1-1-A"}, names(t, db))

	got, err := os.ReadFile(filepath.Join(dir, "report.csv"))
	require.NoError(t, err)
	assert.Equal(t, wantReport, string(got))
}

func TestRunDryRunLeavesHost(t *testing.T) {
	dir := workdir(t)
	db := filepath.Join(dir, "parts.db")
	seedDB(t, db)
	writerTo(t, dir)

	code := run([]string{"--source", "sqlite", "--renamer", "sqlite", "--dry-run", "--status=false", db})
	require.Equal(t, exitOK, code)
	assert.Equal(t, []string{"P1", "P2", "P1"}, names(t, db))
	_, err := os.Stat(filepath.Join(dir, "report.csv"))
	assert.NoError(t, err)
}

func TestRunInitConfig(t *testing.T) {
	dir := workdir(t)
	outDir := filepath.Join(dir, "tpl")
	require.Equal(t, exitOK, run([]string{"--init-config=" + outDir}))

	cfgPath := filepath.Join(outDir, "config.json")
	cfg, err := cfgpkg.LoadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfgpkg.Defaults().Components, cfg.Components)
	env, err := os.ReadFile(filepath.Join(outDir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "DIMCODE_OUTPUT")

	// 不覆盖已存在文件
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0o644))
	require.Equal(t, exitOK, run([]string{"--init-config=" + outDir}))
	b, _ := os.ReadFile(cfgPath)
	assert.Equal(t, "{}", string(b))
}

func TestRunInitConfigDefaultDir(t *testing.T) {
	dir := workdir(t)
	require.Equal(t, exitOK, run([]string{"--init-config"}))
	_, err := os.Stat(filepath.Join(dir, "config.json"))
	assert.NoError(t, err)
}

func TestRunConfigErrors(t *testing.T) {
	workdir(t)
	cases := map[string][]string{
		"配置文件不存在": {"--config", "missing.json"},
		"未注册组件":   {"--source", "dxf"},
		"日志级别":    {"--log-level", "loud"},
		"未知旗标":    {"--nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, exitConfig, run(args))
		})
	}
}

func TestRunBadEnvJSON(t *testing.T) {
	workdir(t)
	t.Setenv("DIMCODE_OPTIONS_SOURCE_JSON", "{bad")
	assert.Equal(t, exitConfig, run([]string{"-"}))
}

func TestRunAssembleError(t *testing.T) {
	workdir(t)
	t.Setenv("DIMCODE_OPTIONS_SOURCE_JSON", `{"unknown":true}`)
	assert.Equal(t, exitConfig, run([]string{"x.csv"}))
}

func TestRunPipelineError(t *testing.T) {
	dir := workdir(t)
	writerTo(t, dir)
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{}, contract.ErrSourceInvalid
	}
	defer func() { pipelineRun = orig }()
	assert.Equal(t, exitRuntime, run([]string{"--status=false", "x.csv"}))
}

func TestRunPipelineSettings(t *testing.T) {
	dir := workdir(t)
	writerTo(t, dir)
	var got pipeline.Settings
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Result, error) {
		got = set
		return pipeline.Result{Total: "0.00"}, nil
	}
	defer func() { pipelineRun = orig }()
	require.Equal(t, exitOK, run([]string{"--status=false", "--output", `reports\a.csv`, "x.csv"}))
	assert.Equal(t, contract.ArtifactID("reports/a.csv"), got.Output)
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := workdir(t)
	yml := "output: from-file.csv\nlogging:\n  level: debug\ncomponents:\n  writer: s3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o644))

	cfg, err := loadConfig(cliFlags{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file.csv", cfg.Output)
	assert.Equal(t, "s3", cfg.Components.Writer)

	t.Setenv("DIMCODE_OUTPUT", "from-env.csv")
	cfg, err = loadConfig(cliFlags{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env.csv", cfg.Output)
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg, err = loadConfig(cliFlags{output: "from-cli.csv", writer: "fs", dryRun: true}, []string{"a.csv"})
	require.NoError(t, err)
	assert.Equal(t, "from-cli.csv", cfg.Output)
	assert.Equal(t, "fs", cfg.Components.Writer)
	assert.Equal(t, "none", cfg.Components.Renamer)
	assert.Equal(t, []string{"a.csv"}, cfg.Inputs)

	// DIMCODE_CONFIG_JSON 优先于文件
	t.Setenv("DIMCODE_CONFIG_JSON", `{"components":{"writer":"fs"}}`)
	cfg, err = loadConfig(cliFlags{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Components.Writer)
}

func TestPreflightOutputDir(t *testing.T) {
	dir := workdir(t)
	cfg := cfgpkg.Defaults()
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"a/b/c"}`)
	assert.NoError(t, preflightOutputDir(cfg))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	b, _ := json.Marshal(map[string]string{"output_dir": file})
	cfg.Options.Writer = b
	assert.Error(t, preflightOutputDir(cfg))

	cfg.Components.Writer = "s3"
	assert.NoError(t, preflightOutputDir(cfg))
}

func TestDumpConfig(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dumpConfig(&buf, cfgpkg.Defaults()))
	assert.True(t, strings.HasPrefix(buf.String(), "有效配置:\n{"))
}

func TestCreateExclusive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x")
	require.NoError(t, createExclusive(p, []byte("1")))
	require.NoError(t, createExclusive(p, []byte("2")))
	b, _ := os.ReadFile(p)
	assert.Equal(t, "1", string(b))
	err := createExclusive(filepath.Join(p, "sub"), nil)
	assert.True(t, err != nil && !errors.Is(err, os.ErrExist))
}
