// Package sqlite 以 SQLite 表作为宿主：读取构件候选并回写新名称。
//
// 约束：
//  1. 表/列名仅允许 [A-Za-z_][A-Za-z0-9_]*；不做引号转义以外的拼接。
//  2. Handle 为键列（缺省 rowid）的文本形式；Apply 以同一键定位。
//  3. Apply 未命中任何行视为 ErrSourceInvalid。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"dimcode/pkg/contract"
)

// Columns: 列名映射。
type Columns struct {
	Key    string `json:"key"`    // 缺省 rowid
	ID     string `json:"id"`     // 缺省 name
	Length string `json:"length"` // 缺省 length
	Width  string `json:"width"`  // 缺省 width
	// Target: 回写新名称的列；缺省与 ID 相同。
	Target string `json:"target"`
}

// Options 为 SQLite 宿主配置。
type Options struct {
	Path    string  `json:"path"`
	Table   string  `json:"table"` // 缺省 components
	Columns Columns `json:"columns"`
	// BusyTimeoutMS: 锁等待毫秒数；缺省 5000。
	BusyTimeoutMS int `json:"busy_timeout_ms"`
}

// Host 同时实现 contract.Source 与 contract.Renamer。
type Host struct {
	db    *sql.DB
	table string
	cols  Columns

	mu     sync.Mutex
	closed bool
}

var (
	_ contract.Source  = (*Host)(nil)
	_ contract.Renamer = (*Host)(nil)
	_ contract.Closer  = (*Host)(nil)
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// New 打开数据库（连接按需建立）。
func New(opts *Options) (*Host, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("sqlite: %w: path required", contract.ErrInvalidInput)
	}
	h := &Host{table: opts.Table, cols: opts.Columns}
	if h.table == "" {
		h.table = "components"
	}
	if h.cols.Key == "" {
		h.cols.Key = "rowid"
	}
	if h.cols.ID == "" {
		h.cols.ID = "name"
	}
	if h.cols.Length == "" {
		h.cols.Length = "length"
	}
	if h.cols.Width == "" {
		h.cols.Width = "width"
	}
	if h.cols.Target == "" {
		h.cols.Target = h.cols.ID
	}
	for _, id := range []string{h.table, h.cols.Key, h.cols.ID, h.cols.Length, h.cols.Width, h.cols.Target} {
		if !identRe.MatchString(id) {
			return nil, fmt.Errorf("sqlite: %w: identifier %q", contract.ErrInvalidInput, id)
		}
	}
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	dsn, err := buildDSN(opts.Path, busy)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	h.db = db
	return h, nil
}

// Fetch 按键列升序读取所有行；NULL 视为空串。
func (h *Host) Fetch(ctx context.Context) ([]contract.Candidate, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s, %s, %s, %s FROM %s ORDER BY %s`,
		quote(h.cols.Key), quote(h.cols.ID), quote(h.cols.Length), quote(h.cols.Width),
		quote(h.table), quote(h.cols.Key))
	rows, err := h.db.QueryContext(ctx, q)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("sqlite: query: %w", cerr)
		}
		return nil, fmt.Errorf("sqlite: %w: %w", contract.ErrSourceInvalid, err)
	}
	defer rows.Close()
	var out []contract.Candidate
	for rows.Next() {
		var key, id, l, w sql.NullString
		if err := rows.Scan(&key, &id, &l, &w); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		out = append(out, contract.Candidate{
			Handle:     key.String,
			OriginalID: id.String,
			LengthRaw:  l.String,
			WidthRaw:   w.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

// Apply 将 newName 写入 handle 对应行的目标列。
func (h *Host) Apply(ctx context.Context, handle, newName string) error {
	if err := h.usable(); err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`,
		quote(h.table), quote(h.cols.Target), quote(h.cols.Key))
	var key any = handle
	if strings.EqualFold(h.cols.Key, "rowid") {
		id, err := strconv.ParseInt(handle, 10, 64)
		if err != nil {
			return fmt.Errorf("sqlite: %w: handle %q", contract.ErrInvalidInput, handle)
		}
		key = id
	}
	res, err := h.db.ExecContext(ctx, q, newName, key)
	if err != nil {
		return fmt.Errorf("sqlite: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %w: handle %q not found", contract.ErrSourceInvalid, handle)
	}
	return nil
}

// Close 关闭数据库；可重复调用。
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}

func (h *Host) usable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("sqlite: host closed")
	}
	return nil
}

// buildDSN 拼接驱动参数。驱动以首个 '?' 切分路径与参数，故路径本身不得含 '?'；
// file: URI 中的 '#' 会被当作片段截断，同样拒绝。
func buildDSN(path string, busyMS int) (string, error) {
	if strings.ContainsRune(path, '?') {
		return "", fmt.Errorf("sqlite: %w: path %q contains '?'", contract.ErrInvalidInput, path)
	}
	if strings.HasPrefix(path, "file:") && strings.ContainsRune(path, '#') {
		return "", fmt.Errorf("sqlite: %w: uri %q contains '#'", contract.ErrInvalidInput, path)
	}
	q := url.Values{}
	q.Set("_pragma", fmt.Sprintf("busy_timeout(%d)", busyMS))
	return path + "?" + q.Encode(), nil
}

// rowid 是伪列，加引号后会被当作普通列名。
func quote(ident string) string {
	if strings.EqualFold(ident, "rowid") {
		return ident
	}
	return `"` + ident + `"`
}
