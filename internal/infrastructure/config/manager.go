package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce 配置文件写入事件的防抖延迟
const reloadDebounce = 500 * time.Millisecond

// Manager 配置管理器
// 持有当前配置快照并监听配置文件变更。依赖方保留 *Manager
// 并在每次使用时调用 Snapshot，即可拿到热更新后的值
type Manager struct {
	path    string
	current *Config
	mu      sync.RWMutex

	watcher       *fsnotify.Watcher
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewManager 创建配置管理器并加载初始配置
func NewManager() (*Manager, error) {
	path := ConfigFilePath()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	return &Manager{
		path:    path,
		current: cfg,
		stopCh:  make(chan struct{}),
		logger:  log.NewModuleLogger("config", "manager"),
	}, nil
}

// Snapshot 获取当前配置快照
// 返回值为只读共享，调用方不得修改
func (m *Manager) Snapshot() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Watch 启动配置文件监听
// 监听配置文件所在目录，编辑器的原子替换（rename + create）也能捕获
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop()

	m.logger.Info("Watching config file", "path", m.path)
	return nil
}

// Stop 停止监听
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
	m.wg.Wait()

	m.debounceMu.Lock()
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceMu.Unlock()
}

// watchLoop 事件处理循环
func (m *Manager) watchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.scheduleReload()

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// scheduleReload 防抖后触发重载
func (m *Manager) scheduleReload() {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(reloadDebounce, m.reload)
}

// reload 重新加载配置文件并替换快照
func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		// 加载失败保留旧快照
		m.logger.Error("Failed to reload config, keeping previous",
			"path", m.path,
			"error", err,
		)
		return
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	m.logger.Info("Config reloaded", "path", m.path)
}
