package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 是超时类配置的类型，环境变量可写成 "30s"、"5m" 或秒数（允许小数）。
type Duration time.Duration

// UnmarshalText 由 loader 的 TextUnmarshaller decode hook 调用，空值表示 0。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	switch parsed, err := time.ParseDuration(raw); {
	case raw == "":
		*d = 0
	case err == nil:
		*d = Duration(parsed)
	default:
		seconds, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return fmt.Errorf("invalid duration value: %s", raw)
		}
		*d = Duration(time.Duration(seconds * float64(time.Second)))
	}
	return nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述进程级运行参数，启动时读取一次后不再变化。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"port" validate:"min=1,max=65535"`
	ImagesPath      string   `mapstructure:"images_path" validate:"required"`
	CachePath       string   `mapstructure:"cache_path" validate:"required"`
	URLPrefix       string   `mapstructure:"url_prefix"`
	Debug           bool     `mapstructure:"debug"`
	DeleteToken     string   `mapstructure:"delete_token"`
	LogLevel        string   `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFilePath     string   `mapstructure:"log_file_path"`
	LogMaxSize      int      `mapstructure:"log_max_size" validate:"gte=0"`
	LogMaxBackups   int      `mapstructure:"log_max_backups" validate:"gte=0"`
	LogCompress     bool     `mapstructure:"log_compress"`
	JPEGQuality     int      `mapstructure:"jpeg_quality" validate:"min=1,max=100"`
	Precache        bool     `mapstructure:"precache"`
	PrecacheWorkers int      `mapstructure:"precache_workers" validate:"min=1,max=64"`
	FailureLogDir   string   `mapstructure:"failure_log_dir"`
	ReadTimeout     Duration `mapstructure:"read_timeout"`
	WriteTimeout    Duration `mapstructure:"write_timeout"`
	MetricsEnabled  bool     `mapstructure:"metrics"`
}

// Config 是环境变量映射的整体结构。
type Config struct {
	Global      GlobalConfig `mapstructure:",squash"`
	Collections []string     `mapstructure:"collections" validate:"min=1,dive,required"`
}

// Collection 是单个资产集合在磁盘上的绑定：源目录只读，缓存目录由 imghub 独占写入。
type Collection struct {
	Name       string
	SourceRoot string
	CacheRoot  string
}

// CollectionList 按配置顺序展开所有集合的源/缓存目录（假定 Validate 已经通过）。
func (c *Config) CollectionList() []Collection {
	if c == nil || len(c.Collections) == 0 {
		return nil
	}
	result := make([]Collection, len(c.Collections))
	for i, name := range c.Collections {
		result[i] = Collection{
			Name:       name,
			SourceRoot: filepath.Join(c.Global.ImagesPath, name),
			CacheRoot:  filepath.Join(c.Global.CachePath, name),
		}
	}
	return result
}

// DeleteEnabled 表示是否配置了删除接口所需的共享 token。
func (g GlobalConfig) DeleteEnabled() bool {
	return g.DeleteToken != ""
}

// EffectiveLogLevel 在 Debug 开启时强制使用 debug 级别。
func (g GlobalConfig) EffectiveLogLevel() string {
	if g.Debug {
		return "debug"
	}
	return g.LogLevel
}

// EffectiveFailureLogDir 未配置时将失败日志写到缓存根目录。
func (g GlobalConfig) EffectiveFailureLogDir() string {
	if g.FailureLogDir != "" {
		return g.FailureLogDir
	}
	return g.CachePath
}
