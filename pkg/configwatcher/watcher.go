package configwatcher

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/pkg/logger"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type ConfigReloader func(cfg *config.Config)

const debounce = time.Second

// Watch 监听配置目录下 config.yaml 的变化，防抖后重新加载并回调。
// 监听目录而不是文件，编辑器以 rename 方式保存时文件 inode 会变。ctx 取消后返回。
func Watch(ctx context.Context, configDir string, reloader ConfigReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return err
	}
	if err := watcher.Add(absDir); err != nil {
		return err
	}
	target := filepath.Join(absDir, "config.yaml")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				// 防抖处理
				timer.Reset(debounce)
			}
		case <-timer.C:
			newCfg, err := config.LoadConfig(absDir)
			if err != nil {
				logger.Log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			logger.Log.Info("Config reloaded", zap.String("path", target))
			reloader(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
