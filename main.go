// 考试练习平台的能力评估与评分服务。
package main

import (
	"exam_prep_backend/internal/app"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/pkg/logger"
	"flag"
	"log"
)

const configDir = "configs"

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	flag.Parse()

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg, configDir)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		logger.Log.Info("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
