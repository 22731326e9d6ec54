// Package cli 提供 w4uctl 命令行：本地文本清洗与导出
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"w4u-wizard-api/internal/application/editorial"
	"w4u-wizard-api/internal/application/export"
)

// Exporter 导出服务
type Exporter interface {
	Export(ctx context.Context, bookID string, format export.Format) (*export.Artifact, error)
}

// App CLI 依赖
type App struct {
	Locale *editorial.Locale
	// OpenExporter 延迟连接数据库，只有 export 命令需要
	OpenExporter func(ctx context.Context) (Exporter, func(), error)
}

// NewRootCmd 创建 w4uctl 根命令
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "w4uctl",
		Short:         "W4U Wizard maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSanitizeCmd(app),
		newExportCmd(app),
	)

	return root
}
