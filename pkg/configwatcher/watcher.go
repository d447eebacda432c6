package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Loader 重新读取配置，默认 config.LoadConfig
type Loader func(dir string) (*config.Config, error)

type ConfigReloader func(cfg *config.Config)

// Watcher 监听配置文件变化，防抖后重新加载并通知回调
type Watcher struct {
	path     string
	debounce time.Duration
	load     Loader
	reloader ConfigReloader
}

func New(configPath string, reloader ConfigReloader) *Watcher {
	return &Watcher{
		path:     configPath,
		debounce: time.Second,
		load:     config.LoadConfig,
		reloader: reloader,
	}
}

// WithLoader 替换配置加载函数
func (w *Watcher) WithLoader(load Loader) *Watcher {
	w.load = load
	return w
}

func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run 阻塞直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	// 监听目录而不是文件，编辑器通过重命名保存时文件监听会丢失
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// 防抖处理
				timer.Reset(w.debounce)
			}
		case <-timer.C:
			newCfg, err := w.load(filepath.Dir(w.path))
			if err != nil {
				logger.Log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			logger.Log.Info("Config reloaded", zap.String("path", w.path))
			w.reloader(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}

// WatchConfig 兼容旧的调用方式，出错时只记录日志
func WatchConfig(ctx context.Context, configPath string, reloader ConfigReloader) {
	if err := New(configPath, reloader).Run(ctx); err != nil {
		logger.Log.Error("Config watcher stopped", zap.Error(err))
	}
}
