package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），csv 表头为 name/length/width；
// - 默认不回写（renamer=none），报表写入 ./out/report.csv；
// - 选项包含全部键，值为安全中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:     []string{"-"},
		Output:     d.Output,
		Logging:    Logging{Level: "info"},
		Components: d.Components,
	}
	cfg.Options.Source = json.RawMessage(`{
  "paths": [],
  "columns": {"id": "name", "length": "length", "width": "width", "handle": ""},
  "comma": ",",
  "allow_exts": [".csv"],
  "buf_size": 65536
}`)
	// none 无配置项，保持空对象
	cfg.Options.Renamer = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}

// EnvTemplate 返回 .env 模板内容（全部键注释掉，按需启用）。
func EnvTemplate() string {
	return `# dimcode 环境变量（优先级高于配置文件，低于命令行参数）
# DIMCODE_INPUTS=parts.csv
# DIMCODE_OUTPUT=report.csv
# DIMCODE_LOG_LEVEL=info
# DIMCODE_COMPONENTS_SOURCE=csv
# DIMCODE_COMPONENTS_RENAMER=none
# DIMCODE_COMPONENTS_WRITER=fs
# DIMCODE_OPTIONS_SOURCE_JSON={"columns":{"id":"name"}}
# DIMCODE_OPTIONS_RENAMER_JSON={}
# DIMCODE_OPTIONS_WRITER_JSON={"output_dir":"out"}
# DIMCODE_CONFIG_JSON=

# s3 writer 密钥（配合 access_key_env/secret_key_env 使用）
# DIMCODE_S3_ACCESS_KEY=
# DIMCODE_S3_SECRET_KEY=
`
}
