package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/imghub/internal/imaging"
	"github.com/any-hub/imghub/internal/metrics"
	"github.com/any-hub/imghub/internal/pathguard"
)

// Collection 描述一个资产集合的名称与只读源目录；缓存目录由 Store 按名称推导。
type Collection struct {
	Name       string
	SourceRoot string
}

// Result 描述 GetOrCreate 的结果：Path 是可直接返回给客户端的文件。
type Result struct {
	Path        string
	Format      imaging.Format
	CacheHit    bool
	PassThrough bool
	SizeBytes   int64
}

// ProcessingError 表示编码或写入缓存失败，细节只写日志，不暴露给客户端。
type ProcessingError struct {
	Op   string
	Path string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// DerivativeOptions 汇总 Derivatives 的依赖，便于测试注入。
type DerivativeOptions struct {
	FS      afero.Fs
	Store   Store
	Encoder imaging.Encoder
	Logger  *logrus.Logger
	Metrics *metrics.Recorder
}

// Derivatives implements get-or-create over the store. It holds no locks of
// its own: two callers missing the same key both encode, and the store's
// atomic rename makes the last (identical) write win.
type Derivatives struct {
	fs      afero.Fs
	store   Store
	encoder imaging.Encoder
	logger  *logrus.Logger
	metrics *metrics.Recorder
}

// NewDerivatives 构造派生缓存服务，FS/Store/Encoder 均为必填。
func NewDerivatives(opts DerivativeOptions) (*Derivatives, error) {
	if opts.FS == nil {
		return nil, errors.New("filesystem is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Encoder == nil {
		return nil, errors.New("encoder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Derivatives{
		fs:      opts.FS,
		store:   opts.Store,
		encoder: opts.Encoder,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Store 返回底层缓存存储，删除操作通过它完成。
func (d *Derivatives) Store() Store {
	return d.store
}

// DerivativeLocator maps a source-relative path to the cache entry holding
// its format derivative: same directories, extension swapped.
func DerivativeLocator(collection, relSource string, format imaging.Format) Locator {
	rel := strings.TrimPrefix(filepath.ToSlash(relSource), "/")
	return Locator{Collection: collection, Path: imaging.SwapExt(rel, format)}
}

// GetOrCreate returns the file to serve for relSource in format.
//
// The pass-through format returns the source path untouched and never
// consults the cache. Otherwise an existing derivative is returned as a hit,
// a missing or unreadable source yields ErrNotFound, and a fresh derivative
// is encoded and written atomically. Encode and write failures are returned
// as *ProcessingError.
func (d *Derivatives) GetOrCreate(ctx context.Context, col Collection, relSource string, format imaging.Format) (Result, error) {
	sourcePath, err := pathguard.Resolve(col.SourceRoot, filepath.FromSlash(strings.TrimPrefix(relSource, "/")))
	if err != nil {
		return Result{}, err
	}

	if format.IsPassThrough() {
		d.metrics.ObserveLookup(col.Name, string(format), metrics.OutcomePassThrough)
		return Result{Path: sourcePath, Format: format, PassThrough: true}, nil
	}

	locator := DerivativeLocator(col.Name, relSource, format)
	cached, err := d.store.Get(ctx, locator)
	switch {
	case err == nil:
		cached.Reader.Close()
		d.metrics.ObserveLookup(col.Name, string(format), metrics.OutcomeHit)
		return Result{
			Path:      cached.Entry.FilePath,
			Format:    format,
			CacheHit:  true,
			SizeBytes: cached.Entry.SizeBytes,
		}, nil
	case errors.Is(err, ErrNotFound):
		// miss, continue
	case errors.Is(err, pathguard.ErrPathViolation):
		return Result{}, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{}, err
	default:
		d.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "cache_get",
			"collection": col.Name,
			"path":       locator.Path,
		}).Warn("cache_get_failed")
	}

	src, err := d.readSource(sourcePath)
	if err != nil {
		d.metrics.ObserveLookup(col.Name, string(format), metrics.OutcomeNotFound)
		return Result{}, err
	}

	started := time.Now()
	out, err := d.encoder.Encode(src, format)
	d.metrics.ObserveEncode(string(format), time.Since(started))
	if err != nil {
		d.metrics.ObserveLookup(col.Name, string(format), metrics.OutcomeError)
		return Result{}, &ProcessingError{Op: "encode", Path: sourcePath, Err: err}
	}

	entry, err := d.store.Put(ctx, locator, bytes.NewReader(out), PutOptions{})
	if err != nil {
		d.metrics.ObserveLookup(col.Name, string(format), metrics.OutcomeError)
		return Result{}, &ProcessingError{Op: "write", Path: locator.Path, Err: err}
	}

	d.metrics.ObserveLookup(col.Name, string(format), metrics.OutcomeMiss)
	d.logger.WithFields(logrus.Fields{
		"action":     "derivative_created",
		"collection": col.Name,
		"source":     relSource,
		"target":     locator.Path,
		"size_bytes": entry.SizeBytes,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Debug("derivative_created")

	return Result{
		Path:      entry.FilePath,
		Format:    format,
		SizeBytes: entry.SizeBytes,
	}, nil
}

// readSource 读取源文件；不存在、是目录或无权限均视为 ErrNotFound。
func (d *Derivatives) readSource(sourcePath string) ([]byte, error) {
	info, err := d.fs.Stat(sourcePath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("source %s: %w", sourcePath, ErrNotFound)
	}
	data, err := afero.ReadFile(d.fs, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source %s: %v: %w", sourcePath, err, ErrNotFound)
	}
	return data, nil
}
