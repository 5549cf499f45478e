package precache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/imghub/internal/cache"
	"github.com/any-hub/imghub/internal/imaging"
	"github.com/any-hub/imghub/internal/metrics"
)

// Deriver is the part of the derivative cache the walker needs.
type Deriver interface {
	GetOrCreate(ctx context.Context, col cache.Collection, relSource string, format imaging.Format) (cache.Result, error)
}

// Options 汇总 Walker 的依赖与参数。
type Options struct {
	FS            afero.Fs
	Derivatives   Deriver
	Logger        *logrus.Logger
	Metrics       *metrics.Recorder
	Format        imaging.Format
	Workers       int
	FailureLogDir string
}

// Report 是一次预缓存的汇总，Failed 按路径排序。
type Report struct {
	Collection  string
	Format      imaging.Format
	Total       int
	Converted   int
	Hits        int
	Failed      []string
	SourceBytes int64
	CacheBytes  int64
	Elapsed     time.Duration
	LogPath     string
}

// Walker 递归遍历单个集合的源目录并逐个文件触发 GetOrCreate。
type Walker struct {
	fs            afero.Fs
	derivatives   Deriver
	logger        *logrus.Logger
	metrics       *metrics.Recorder
	format        imaging.Format
	workers       int
	failureLogDir string
	now           func() time.Time
}

// NewWalker 构造 Walker；Format 缺省为 imaging.DefaultLossy，Workers 缺省为 1。
func NewWalker(opts Options) (*Walker, error) {
	if opts.FS == nil {
		return nil, errors.New("filesystem is required")
	}
	if opts.Derivatives == nil {
		return nil, errors.New("derivative cache is required")
	}
	if opts.FailureLogDir == "" {
		return nil, errors.New("failure log directory is required")
	}
	format := opts.Format
	if format == "" {
		format = imaging.DefaultLossy
	}
	if format.IsPassThrough() {
		return nil, fmt.Errorf("precache format %s needs no conversion", format)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Walker{
		fs:            opts.FS,
		derivatives:   opts.Derivatives,
		logger:        logger,
		metrics:       opts.Metrics,
		format:        format,
		workers:       workers,
		failureLogDir: opts.FailureLogDir,
		now:           time.Now,
	}, nil
}

// Run walks col.SourceRoot and converts every regular file. Per-file failures
// land in Report.Failed; the returned error is reserved for a source root
// that cannot be walked at all or for context cancellation.
func (w *Walker) Run(ctx context.Context, col cache.Collection) (*Report, error) {
	started := w.now()
	report := &Report{Collection: col.Name, Format: w.format}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.workers)

	recordFailure := func(path string) {
		mu.Lock()
		report.Failed = append(report.Failed, path)
		report.Total++
		mu.Unlock()
		w.metrics.ObservePrecacheFile(col.Name, metrics.OutcomeError)
	}

	walkErr := afero.Walk(w.fs, col.SourceRoot, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == col.SourceRoot {
				return err
			}
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action":     "precache_walk",
				"collection": col.Name,
				"path":       path,
			}).Warn("precache_walk_failed")
			recordFailure(path)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(col.SourceRoot, path)
		if relErr != nil {
			recordFailure(path)
			return nil
		}
		size := info.Size()
		g.Go(func() error {
			w.process(ctx, col, path, filepath.ToSlash(rel), size, report, &mu, recordFailure)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	report.Elapsed = w.now().Sub(started)
	sort.Strings(report.Failed)

	if walkErr != nil {
		w.logger.WithError(walkErr).WithFields(logrus.Fields{
			"action":     "precache",
			"collection": col.Name,
			"root":       col.SourceRoot,
		}).Error("precache_aborted")
		return report, fmt.Errorf("walk %s: %w", col.SourceRoot, walkErr)
	}

	logPath, err := w.persistFailures(col.Name, report.Failed)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "precache",
			"collection": col.Name,
		}).Warn("precache_failure_log_failed")
	}
	report.LogPath = logPath

	w.metrics.ObservePrecacheRun(col.Name, report.Elapsed)
	w.logSummary(report)
	return report, nil
}

func (w *Walker) process(
	ctx context.Context,
	col cache.Collection,
	path string,
	rel string,
	size int64,
	report *Report,
	mu *sync.Mutex,
	recordFailure func(string),
) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithFields(logrus.Fields{
				"action":     "precache",
				"collection": col.Name,
				"path":       path,
				"panic":      fmt.Sprint(r),
			}).Error("precache_panic")
			recordFailure(path)
		}
	}()

	result, err := w.derivatives.GetOrCreate(ctx, col, rel, w.format)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "precache",
			"collection": col.Name,
			"path":       path,
		}).Warn("precache_file_failed")
		recordFailure(path)
		return
	}

	outcome := metrics.OutcomeMiss
	mu.Lock()
	report.Total++
	if result.CacheHit {
		report.Hits++
		outcome = metrics.OutcomeHit
	} else {
		report.Converted++
	}
	report.SourceBytes += size
	report.CacheBytes += result.SizeBytes
	mu.Unlock()
	w.metrics.ObservePrecacheFile(col.Name, outcome)
}

// FailureLogPath 返回集合失败日志的固定位置，每次运行覆盖。
func (w *Walker) FailureLogPath(collection string) string {
	return filepath.Join(w.failureLogDir, collection+"-precache-failures.txt")
}

// persistFailures 写入本次失败列表；无失败时删除上一轮遗留的日志。
func (w *Walker) persistFailures(collection string, failed []string) (string, error) {
	logPath := w.FailureLogPath(collection)
	if len(failed) == 0 {
		if err := w.fs.Remove(logPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		return "", nil
	}

	if err := w.fs.MkdirAll(w.failureLogDir, 0o755); err != nil {
		return "", err
	}
	body := strings.Join(failed, "\n") + "\n"
	if err := afero.WriteFile(w.fs, logPath, []byte(body), 0o644); err != nil {
		return "", err
	}
	return logPath, nil
}

func (w *Walker) logSummary(report *Report) {
	fields := logrus.Fields{
		"action":       "precache",
		"collection":   report.Collection,
		"format":       string(report.Format),
		"total":        report.Total,
		"converted":    report.Converted,
		"hits":         report.Hits,
		"failed":       len(report.Failed),
		"elapsed_ms":   report.Elapsed.Milliseconds(),
		"source_bytes": humanize.Bytes(uint64(report.SourceBytes)),
		"cache_bytes":  humanize.Bytes(uint64(report.CacheBytes)),
	}
	if report.SourceBytes > 0 {
		fields["size_ratio"] = fmt.Sprintf("%.2f", float64(report.CacheBytes)/float64(report.SourceBytes))
	}
	if report.LogPath != "" {
		fields["failure_log"] = report.LogPath
	}
	entry := w.logger.WithFields(fields)
	if len(report.Failed) > 0 {
		entry.Warn("precache_complete")
		return
	}
	entry.Info("precache_complete")
}
