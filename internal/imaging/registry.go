package imaging

import (
	"fmt"
	"image"
	"io"
	"sort"
	"strings"
	"sync"
)

// EncodeOptions 控制编码器的可调参数。
type EncodeOptions struct {
	JPEGQuality int
}

// Codec 描述一个可输出格式的静态信息与编码函数。
type Codec struct {
	Format Format
	MIME   string
	Lossy  bool
	Encode func(w io.Writer, img image.Image, opts EncodeOptions) error
}

var globalRegistry = newRegistry()

type registry struct {
	mu     sync.RWMutex
	codecs map[Format]Codec
}

func newRegistry() *registry {
	return &registry{codecs: make(map[Format]Codec)}
}

// Register 将编码器加入全局注册表，重复格式会返回错误。
func Register(codec Codec) error {
	return globalRegistry.register(codec)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(codec Codec) {
	if err := Register(codec); err != nil {
		panic(err)
	}
}

// Lookup 返回指定格式的编码器。
func Lookup(f Format) (Codec, bool) {
	return globalRegistry.resolve(f)
}

// Formats 返回按名称排序的所有已注册格式。
func Formats() []Format {
	return globalRegistry.formats()
}

func (r *registry) register(codec Codec) error {
	key := Format(strings.ToLower(strings.TrimSpace(string(codec.Format))))
	if key == "" {
		return fmt.Errorf("codec format is required")
	}
	if codec.Encode == nil {
		return fmt.Errorf("codec %s has no encoder", key)
	}
	codec.Format = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[key]; exists {
		return fmt.Errorf("codec %s already registered", key)
	}
	r.codecs[key] = codec
	return nil
}

func (r *registry) resolve(f Format) (Codec, bool) {
	if f == "" {
		return Codec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, ok := r.codecs[f]
	return codec, ok
}

func (r *registry) formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Format, 0, len(r.codecs))
	for key := range r.codecs {
		result = append(result, key)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
