// 手动导入 YAML 题库
//
// 用法: go run scripts/seed_tests.go -file configs/seed.yaml

package main

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/seed"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/logger"
	"flag"
	"log"

	"go.uber.org/zap"
)

func main() {
	file := flag.String("file", "configs/seed.yaml", "题库文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	cfg.ForceMigrate = true
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	// 直接写库，不经过缓存；运行中的服务会在缓存过期后读到新试卷
	tests := service.NewTestService(repository.NewTestRepository(db, nil))
	n, err := seed.Import(context.Background(), tests, *file)
	if err != nil {
		logger.Log.Fatal("导入失败", zap.Int("imported", n), zap.Error(err))
	}
	logger.Log.Info("导入完成", zap.Int("tests", n))
}
