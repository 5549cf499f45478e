package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/any-hub/imghub/internal/assets"
	"github.com/any-hub/imghub/internal/cache"
	"github.com/any-hub/imghub/internal/config"
	"github.com/any-hub/imghub/internal/imaging"
	"github.com/any-hub/imghub/internal/logging"
	"github.com/any-hub/imghub/internal/metrics"
	"github.com/any-hub/imghub/internal/precache"
	"github.com/any-hub/imghub/internal/server"
	"github.com/any-hub/imghub/internal/server/routes"
	"github.com/any-hub/imghub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	envFile      string
	checkOnly    bool
	precacheOnly bool
	showVersion  bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		fmt.Fprintf(stdErr, "加载 env 文件失败: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", config.EnvPrefix)
		fields["collections"] = cfg.Collections
		fields["delete_enabled"] = cfg.Global.DeleteEnabled()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 集合注册表 → 派生缓存 → 预缓存 → Fiber server”，
	// 预缓存与 HTTP 请求共享同一个 Derivatives 实例。
	svc, err := buildService(cfg, logger, afero.NewOsFs())
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", config.EnvPrefix)
	fields["collections"] = cfg.Collections
	fields["listen_port"] = cfg.Global.ListenPort
	fields["url_prefix"] = cfg.Global.URLPrefix
	fields["delete_enabled"] = cfg.Global.DeleteEnabled()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.precacheOnly {
		if _, err := svc.runner.RunAll(ctx); err != nil {
			fmt.Fprintf(stdErr, "预缓存失败: %v\n", err)
			return 1
		}
		return 0
	}

	if cfg.Global.Precache {
		svc.runner.Start(ctx)
	}

	if err := startHTTPServer(ctx, cfg, svc.app, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// service 聚合一次进程生命周期内共享的组件。
type service struct {
	app    *fiber.App
	runner *precache.Runner
}

func buildService(cfg *config.Config, logger *logrus.Logger, fsys afero.Fs) (*service, error) {
	registry, err := server.NewCollectionRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建集合注册表失败: %w", err)
	}

	var (
		recorder *metrics.Recorder
		gatherer prometheus.Gatherer
	)
	if cfg.Global.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewRecorder(reg)
		gatherer = reg
	}

	store, err := cache.NewStore(fsys, cfg.Global.CachePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	derivatives, err := cache.NewDerivatives(cache.DerivativeOptions{
		FS:      fsys,
		Store:   store,
		Encoder: imaging.NewTranscoder(cfg.Global.JPEGQuality),
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		return nil, err
	}

	walker, err := precache.NewWalker(precache.Options{
		FS:            fsys,
		Derivatives:   derivatives,
		Logger:        logger,
		Metrics:       recorder,
		Format:        imaging.DefaultLossy,
		Workers:       cfg.Global.PrecacheWorkers,
		FailureLogDir: cfg.Global.EffectiveFailureLogDir(),
	})
	if err != nil {
		return nil, err
	}

	handler, err := assets.NewHandler(assets.Options{
		Derivatives: derivatives,
		FS:          fsys,
		Logger:      logger,
		DeleteToken: cfg.Global.DeleteToken,
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:       logger,
		Registry:     registry,
		Assets:       handler,
		URLPrefix:    cfg.Global.URLPrefix,
		ReadTimeout:  cfg.Global.ReadTimeout.DurationValue(),
		WriteTimeout: cfg.Global.WriteTimeout.DurationValue(),
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnostics(app, registry, gatherer)

	return &service{
		app:    app,
		runner: precache.NewRunner(walker, registry.Collections(), logger),
	}, nil
}

// parseCLIFlags 解析 CLI 参数。配置本身全部来自环境变量（可由 env 文件预先注入）。
func parseCLIFlags(args []string) (cliOptions, error) {
	flags := pflag.NewFlagSet("imghub", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var opts cliOptions
	flags.StringVar(&opts.envFile, "env-file", "", "env 文件路径（默认尝试加载 ./.env）")
	flags.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	flags.BoolVar(&opts.precacheOnly, "precache-only", false, "同步执行预缓存后退出")
	flags.BoolVar(&opts.showVersion, "version", false, "显示版本信息")

	if err := flags.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.checkOnly && opts.precacheOnly {
		return cliOptions{}, errors.New("--check-config 与 --precache-only 不能同时使用")
	}
	return opts, nil
}

// loadEnvFile 加载 env 文件，已存在的环境变量不会被覆盖。
// 未显式指定时 ./.env 可选；显式指定的文件必须存在。
func loadEnvFile(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, app *fiber.App, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，停止 Fiber 服务")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("shutdown_failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
}
