package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是所有环境变量的前缀，例如 IMGHUB_IMAGES_PATH。
const EnvPrefix = "IMGHUB"

// Load 从环境变量读取配置，同时注入默认值与校验逻辑。
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	cfg.Collections = normalizeCollections(cfg.Collections)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("images_path", "./images")
	v.SetDefault("cache_path", "./cache")
	v.SetDefault("url_prefix", "")
	v.SetDefault("debug", false)
	v.SetDefault("delete_token", "")
	v.SetDefault("collections", []string{"Logos", "Screenshots"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file_path", "")
	v.SetDefault("log_max_size", 100)
	v.SetDefault("log_max_backups", 10)
	v.SetDefault("log_compress", true)
	v.SetDefault("jpeg_quality", 85)
	v.SetDefault("precache", true)
	v.SetDefault("precache_workers", 2)
	v.SetDefault("failure_log_dir", "")
	v.SetDefault("read_timeout", "30s")
	v.SetDefault("write_timeout", "60s")
	v.SetDefault("metrics", true)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.ReadTimeout.DurationValue() <= 0 {
		g.ReadTimeout = Duration(30 * time.Second)
	}
	if g.WriteTimeout.DurationValue() <= 0 {
		g.WriteTimeout = Duration(60 * time.Second)
	}
	g.URLPrefix = normalizePrefix(g.URLPrefix)
	g.DeleteToken = strings.TrimSpace(g.DeleteToken)

	if abs, err := filepath.Abs(g.ImagesPath); err == nil && g.ImagesPath != "" {
		g.ImagesPath = abs
	}
	if abs, err := filepath.Abs(g.CachePath); err == nil && g.CachePath != "" {
		g.CachePath = abs
	}
	if g.FailureLogDir != "" {
		if abs, err := filepath.Abs(g.FailureLogDir); err == nil {
			g.FailureLogDir = abs
		}
	}
}

// normalizePrefix 将 "assets/"、"/assets" 统一为 "/assets"，"/" 视为无前缀。
func normalizePrefix(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func normalizeCollections(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// durationDecodeHook 处理非字符串来源（SetDefault 的数值、TextUnmarshaller 产出的指针），
// 字符串统一交给 Duration.UnmarshalText。
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case *Duration:
			return *v, nil
		case Duration:
			return v, nil
		case time.Duration:
			return Duration(v), nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
