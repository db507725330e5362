package registry

import (
	"bytes"
	"encoding/json"

	"dimcode/pkg/contract"
	hsql "dimcode/plugins/host/sqlite"
	rnone "dimcode/plugins/renamer/none"
	scsv "dimcode/plugins/source/csvfile"
	wfs "dimcode/plugins/writer/filesystem"
	ws3 "dimcode/plugins/writer/s3"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.Source, error)

// NewRenamer 工厂签名：接收原样 JSON Options。
type NewRenamer func(raw json.RawMessage) (contract.Renamer, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Source 工厂注册表（显式、零反射）。
var Source = map[string]NewSource{
	// csv: 文件/目录/STDIN 表格
	"csv": func(raw json.RawMessage) (contract.Source, error) {
		var opts scsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return scsv.New(&opts)
	},
	// sqlite: 构件表（rowid 作为 Handle）
	"sqlite": func(raw json.RawMessage) (contract.Source, error) {
		var opts hsql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return hsql.New(&opts)
	},
}

// Renamer 工厂注册表。
var Renamer = map[string]NewRenamer{
	// none: 只计数不回写（dry-run）
	"none": func(raw json.RawMessage) (contract.Renamer, error) {
		var opts rnone.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rnone.New(&opts)
	},
	// sqlite: UPDATE 目标列
	"sqlite": func(raw json.RawMessage) (contract.Renamer, error) {
		var opts hsql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return hsql.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// s3: S3 兼容对象存储
	"s3": func(raw json.RawMessage) (contract.Writer, error) {
		var opts ws3.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ws3.New(&opts)
	},
}
