// Package csvfile 从 CSV 表格（文件、目录或 STDIN）读取候选构件。
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"dimcode/pkg/contract"
)

// Columns: 表头列名映射（大小写不敏感，去首尾空白）。
type Columns struct {
	ID     string `json:"id"`
	Length string `json:"length"`
	Width  string `json:"width"`
	// Handle: 可选；为空时以 "<文件>:<数据行号>" 作为 Handle。
	Handle string `json:"handle"`
}

// Options 为 CSV Source 的配置。
type Options struct {
	// Paths: 输入根（文件/目录），或仅 "-" 表示 STDIN；目录按字典序递归。
	Paths []string `json:"paths"`
	// Columns: 列名映射；缺省为 name/length/width。
	Columns Columns `json:"columns"`
	// Comma: 字段分隔符（单字符）；缺省 ","。
	Comma string `json:"comma"`
	// AllowExts: 扫描目录时接受的扩展名；缺省 [".csv"]。单文件 root 不受限制。
	AllowExts []string `json:"allow_exts"`
	// BufSize: 读缓冲区大小（字节）；缺省 64KiB。
	BufSize int `json:"buf_size"`
}

// CSV 实现 contract.Source。
type CSV struct {
	paths   []string
	cols    Columns
	comma   rune
	exts    map[string]struct{}
	bufSize int
	stdin   io.Reader
}

var _ contract.Source = (*CSV)(nil)

// New 创建 CSV Source。
func New(opts *Options) (*CSV, error) {
	if opts == nil {
		opts = &Options{}
	}
	c := &CSV{
		paths:   append([]string(nil), opts.Paths...),
		cols:    opts.Columns,
		comma:   ',',
		exts:    map[string]struct{}{},
		bufSize: opts.BufSize,
		stdin:   os.Stdin,
	}
	if c.cols.ID == "" {
		c.cols.ID = "name"
	}
	if c.cols.Length == "" {
		c.cols.Length = "length"
	}
	if c.cols.Width == "" {
		c.cols.Width = "width"
	}
	if opts.Comma != "" {
		r, size := utf8.DecodeRuneInString(opts.Comma)
		if size != len(opts.Comma) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
			return nil, fmt.Errorf("csv: %w: comma %q", contract.ErrInvalidInput, opts.Comma)
		}
		c.comma = r
	}
	exts := opts.AllowExts
	if len(exts) == 0 {
		exts = []string{".csv"}
	}
	for _, e := range exts {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			c.exts[e] = struct{}{}
		}
	}
	if c.bufSize <= 0 {
		c.bufSize = 64 * 1024
	}
	return c, nil
}

// Fetch 按稳定顺序读取全部候选。
func (c *CSV) Fetch(ctx context.Context) ([]contract.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(c.paths) == 0 {
		return nil, fmt.Errorf("csv: %w: no input paths", contract.ErrInvalidInput)
	}
	var out []contract.Candidate
	if len(c.paths) == 1 && strings.TrimSpace(c.paths[0]) == "-" {
		return c.readOne(ctx, "stdin", c.stdin, out)
	}
	for _, p := range c.paths {
		if strings.TrimSpace(p) == "-" {
			return nil, errors.New("csv: stdin '-' cannot be mixed with other paths")
		}
	}
	for _, root := range c.paths {
		var err error
		if out, err = c.iterateRoot(ctx, root, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *CSV) iterateRoot(ctx context.Context, root string, out []contract.Candidate) ([]contract.Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return c.walkDir(ctx, root, out)
	}
	if !info.Mode().IsRegular() {
		return out, nil
	}
	return c.readFile(ctx, root, out)
}

func (c *CSV) walkDir(ctx context.Context, dir string, out []contract.Candidate) ([]contract.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	// 稳定顺序：字典序；先目录后文件
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() {
			if out, err = c.walkDir(ctx, filepath.Join(dir, e.Name()), out); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range entries {
		if e.IsDir() || !e.Type().IsRegular() {
			continue
		}
		if _, ok := c.exts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		if out, err = c.readFile(ctx, filepath.Join(dir, e.Name()), out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *CSV) readFile(ctx context.Context, path string, out []contract.Candidate) ([]contract.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.readOne(ctx, string(contract.NormalizeArtifactID(path)), f, out)
}

// readOne 解析单个表格：首行为表头，其余每行一个候选。
func (c *CSV) readOne(ctx context.Context, name string, r io.Reader, out []contract.Candidate) ([]contract.Candidate, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, c.bufSize))
	cr.Comma = c.comma
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", name, err)
	}
	idx, err := c.columnIndex(head)
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", name, err)
	}
	for row := 1; ; row++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv %s: %w", name, err)
		}
		cand := contract.Candidate{
			OriginalID: field(rec, idx.id),
			LengthRaw:  field(rec, idx.length),
			WidthRaw:   field(rec, idx.width),
		}
		if idx.handle >= 0 {
			cand.Handle = field(rec, idx.handle)
		} else {
			cand.Handle = name + ":" + strconv.Itoa(row)
		}
		out = append(out, cand)
	}
}

type colIndex struct{ id, length, width, handle int }

func (c *CSV) columnIndex(head []string) (colIndex, error) {
	pos := make(map[string]int, len(head))
	for i, h := range head {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		k := strings.ToLower(strings.TrimSpace(h))
		if _, dup := pos[k]; !dup {
			pos[k] = i
		}
	}
	find := func(name string) (int, error) {
		i, ok := pos[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return -1, fmt.Errorf("%w: missing column %q", contract.ErrSourceInvalid, name)
		}
		return i, nil
	}
	var ci colIndex
	var err error
	if ci.id, err = find(c.cols.ID); err != nil {
		return ci, err
	}
	if ci.length, err = find(c.cols.Length); err != nil {
		return ci, err
	}
	if ci.width, err = find(c.cols.Width); err != nil {
		return ci, err
	}
	ci.handle = -1
	if c.cols.Handle != "" {
		if ci.handle, err = find(c.cols.Handle); err != nil {
			return ci, err
		}
	}
	return ci, nil
}

// field 越界返回空串（短行视为缺省值）。
func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
