package testdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	cfgpkg "dimcode/internal/config"
	"dimcode/internal/pipeline"
	"dimcode/pkg/contract"
)

func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Logging.Level = "error"
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false,"perm_file":0,"perm_dir":0,"buf_size":65536}`, outDir))
	return cfg
}

func runPipeline(t *testing.T, cfg cfgpkg.Config) (pipeline.Result, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer pipeline.Close(comp)
	return pipeline.Run(context.Background(), comp, set, nil)
}

func golden(t *testing.T, name string) string {
	b, err := os.ReadFile(filepath.Join("golden", name))
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return string(b)
}

func TestE2ECSV(t *testing.T) {
	in := filepath.Join("files", "cabinet.csv")
	outDir := t.TempDir()
	res, err := runPipeline(t, baseConfig(in, outDir))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "report.csv"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if want := golden(t, "cabinet_report.csv"); string(got) != want {
		t.Fatalf("output mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
	if res.Candidates != 10 || res.Groups != 4 || res.Total != "2.81" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

// 同一输入重复运行，输出逐字节一致。
func TestE2EDeterministic(t *testing.T) {
	in := filepath.Join("files", "cabinet.csv")
	var first string
	for i := 0; i < 3; i++ {
		outDir := t.TempDir()
		if _, err := runPipeline(t, baseConfig(in, outDir)); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		got, err := os.ReadFile(filepath.Join(outDir, "report.csv"))
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		if i == 0 {
			first = string(got)
			continue
		}
		if string(got) != first {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestE2ESqliteHost(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cabinet.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE components (name TEXT, length TEXT, width TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	// 与 CSV 样例同序写入
	raw, err := os.ReadFile(filepath.Join("files", "cabinet.csv"))
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n")[1:] {
		f := strings.Split(line, ",")
		if _, err := db.Exec(`INSERT INTO components VALUES (?, ?, ?)`, f[0], f[1], f[2]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	_ = db.Close()

	outDir := filepath.Join(dir, "out")
	cfg := baseConfig(dbPath, outDir)
	cfg.Components.Source = "sqlite"
	cfg.Components.Renamer = "sqlite"
	cfg.Options.Source = nil
	cfg.Options.Renamer = nil
	if _, err := runPipeline(t, cfg); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "report.csv"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if want := golden(t, "cabinet_report.csv"); string(got) != want {
		t.Fatalf("output mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}

	db, err = sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM components WHERE name = 'SHELF-4-D'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 3 {
		t.Fatalf("renamed SHELF rows = %d, want 3", n)
	}
}

func TestE2EMissingColumn(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(in, []byte("id,len\nA,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	_, err := runPipeline(t, baseConfig(in, outDir))
	if err == nil || !strings.Contains(err.Error(), contract.ErrSourceInvalid.Error()) {
		t.Fatalf("expect source error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "report.csv")); err == nil {
		t.Fatalf("output file should not exist")
	}
}

func TestE2EEmptyInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(in, []byte("name,length,width\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	if _, err := runPipeline(t, baseConfig(in, outDir)); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "report.csv"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "Total,,,,0.00\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}
