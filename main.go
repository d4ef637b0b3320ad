package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shell-gate/shell-gate/internal/cache"
	"github.com/shell-gate/shell-gate/internal/config"
	"github.com/shell-gate/shell-gate/internal/lifecycle"
	"github.com/shell-gate/shell-gate/internal/logging"
	"github.com/shell-gate/shell-gate/internal/proxy"
	"github.com/shell-gate/shell-gate/internal/server"
	"github.com/shell-gate/shell-gate/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

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

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(*cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["generation"] = cfg.Generation
		fields["core_assets"] = len(cfg.CoreAssets)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	origin, err := server.NewOrigin(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Origin 失败: %v\n", err)
		return 1
	}

	// 启动遵循“配置 → 磁盘缓存 → install → activate → Fiber server”顺序：
	// 监听开始前新世代已经预热完成且旧世代已被回收，等价于
	// skipWaiting + clients.claim 的立即接管语义。
	store, err := cache.NewStore(cfg.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)

	ctx := context.Background()
	installer := lifecycle.NewInstaller(httpClient, store, origin, logger)
	if err := installer.Run(ctx, cfg.CoreAssets); err != nil {
		fmt.Fprintf(stdErr, "安装阶段被中断: %v\n", err)
		return 1
	}

	activator := lifecycle.NewActivator(store, logger)
	if err := activator.Run(ctx, cfg.Generation); err != nil {
		fmt.Fprintf(stdErr, "激活阶段失败: %v\n", err)
		return 1
	}

	classifier := proxy.NewClassifier(cfg.ConfigResource, cfg.FreshPaths)
	handler := proxy.NewHandler(httpClient, logger, store, origin, classifier)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["generation"] = cfg.Generation
	fields["listen_port"] = cfg.ListenPort
	fields["domain"] = cfg.Domain
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, origin, handler, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("shell-gate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SHELL_GATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SHELL_GATE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, origin *server.Origin, handler server.GatewayHandler, logger *logrus.Logger) error {
	port := cfg.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Origin:     origin,
		Gateway:    handler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
