// Package main w4uctl 命令行入口
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"w4u-wizard-api/internal/application/editorial"
	"w4u-wizard-api/internal/cli"
	"w4u-wizard-api/internal/config"
	"w4u-wizard-api/internal/wire"
	"w4u-wizard-api/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// 日志写 stderr，stdout 留给命令输出
	logger.InitWithWriter(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	app := &cli.App{
		Locale: editorial.LocaleFor(cfg.Export.Language),
		OpenExporter: func(ctx context.Context) (cli.Exporter, func(), error) {
			dl, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			svc, err := wire.ProvideExportService(cfg, dl, wire.ProvideHTTPClient())
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			return svc, cleanup, nil
		},
	}

	return cli.NewRootCmd(app).ExecuteContext(context.Background())
}
