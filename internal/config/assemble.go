package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dimcode/internal/pipeline"
	"dimcode/pkg/contract"
	"dimcode/pkg/registry"
)

// inputKeys: 各 Source 实现中承载输入根的 options 键，以及是否为列表。
var inputKeys = map[string]struct {
	key  string
	list bool
}{
	"csv":    {key: "paths", list: true},
	"sqlite": {key: "path", list: false},
}

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if id := contract.NormalizeArtifactID(strings.TrimSpace(cfg.Output)); cfg.Output != "" && (id == "." || id == "/") {
		return fmt.Errorf("config: output %q is not a file", cfg.Output)
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		return fmt.Errorf("config: logging.level %q invalid", cfg.Logging.Level)
	}
	d := Defaults()
	sn := effName(cfg.Components.Source, d.Components.Source)
	if registry.Source[sn] == nil {
		return fmt.Errorf("config: source %q not registered", sn)
	}
	if name := effName(cfg.Components.Renamer, d.Components.Renamer); registry.Renamer[name] == nil {
		return fmt.Errorf("config: renamer %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if len(cfg.Inputs) > 0 {
		ik, ok := inputKeys[sn]
		if !ok {
			return fmt.Errorf("config: source %q does not accept inputs", sn)
		}
		if !ik.list && len(cfg.Inputs) > 1 {
			return fmt.Errorf("config: source %q accepts a single input", sn)
		}
		if sn == "sqlite" && dash {
			return errors.New("config: source \"sqlite\" cannot read STDIN")
		}
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
// 失败时已构造的组件会被释放。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults()
	sn := effName(cfg.Components.Source, d.Components.Source)
	rn := effName(cfg.Components.Renamer, d.Components.Renamer)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	srcRaw := cfg.Options.Source
	if len(cfg.Inputs) > 0 {
		var err error
		if srcRaw, err = withInputs(sn, srcRaw, cfg.Inputs); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, err
		}
	}

	var comp pipeline.Components
	fail := func(err error) (pipeline.Components, pipeline.Settings, error) {
		_ = pipeline.Close(comp)
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 构造实例
	s, err := registry.Source[sn](srcRaw)
	if err != nil {
		return fail(fmt.Errorf("config: source %q: %w", sn, err))
	}
	comp.Source = s

	if r, ok := s.(contract.Renamer); ok && rn == sn && len(cfg.Options.Renamer) == 0 {
		comp.Renamer = r
	} else {
		r, err := registry.Renamer[rn](cfg.Options.Renamer)
		if err != nil {
			return fail(fmt.Errorf("config: renamer %q: %w", rn, err))
		}
		comp.Renamer = r
	}

	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return fail(fmt.Errorf("config: writer %q: %w", wn, err))
	}
	comp.Writer = w

	set := pipeline.Settings{
		Output: contract.NormalizeArtifactID(effName(strings.TrimSpace(cfg.Output), d.Output)),
	}
	return comp, set, nil
}

// withInputs 将输入根写入 Source options 的对应键（其他键保持不变）。
func withInputs(source string, raw json.RawMessage, inputs []string) (json.RawMessage, error) {
	ik, ok := inputKeys[source]
	if !ok {
		return nil, fmt.Errorf("config: source %q does not accept inputs", source)
	}
	obj := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("config: options.source: %w", err)
		}
	}
	var v any = inputs[0]
	if ik.list {
		v = inputs
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	obj[ik.key] = b
	return json.Marshal(obj)
}

// EffectiveNames 返回 source/renamer/writer 的最终组件名（供终端提示）。
func EffectiveNames(cfg Config) (source, renamer, writer string) {
	d := Defaults().Components
	return effName(cfg.Components.Source, d.Source),
		effName(cfg.Components.Renamer, d.Renamer),
		effName(cfg.Components.Writer, d.Writer)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
