package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: 输入根；非空时覆盖 Source options 中的路径（csv: paths，sqlite: path）。
	Inputs []string `json:"inputs"`
	// Output: 报表标识，交给 Writer 解析（文件相对路径或对象键）。
	Output  string  `json:"output"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Source  string `json:"source"`
	Renamer string `json:"renamer"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
// Renamer 与 Source 同名且 Renamer 未给出 options 时，复用 Source 的实例。
type Options struct {
	Source  json.RawMessage `json:"source"`
	Renamer json.RawMessage `json:"renamer"`
	Writer  json.RawMessage `json:"writer"`
}
