package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Store 负责状态快照的落盘与恢复。每次保存独立完成打开、写入与替换，
// 不跨周期持有文件句柄。
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore 创建快照存储并确保目标目录存在。
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot: 快照路径不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("snapshot: 创建目录 %q 失败: %w", dir, err)
		}
	}
	return &Store{path: path, logger: logger}, nil
}

// Path 返回快照文件位置。
func (s *Store) Path() string {
	return s.path
}

// Save 先写入临时文件再原子替换正式文件，崩溃时读者不会观察到半写的快照。
func (s *Store) Save(snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot: 快照不能为空")
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: 序列化快照失败: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: 写入临时快照失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("snapshot: 替换快照文件失败: %w", err)
	}

	s.logger.Debug("快照已保存",
		zap.String("path", s.path),
		zap.Int("iteration", snap.IterationCount),
	)
	return nil
}

// Load 读取最近一次快照。文件缺失返回 nil；
// 文件损坏或不可读不视为致命错误，告警后按无快照处理。
func (s *Store) Load() *Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Warn("读取快照失败，按无快照处理",
			zap.String("path", s.path), zap.Error(err))
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("快照内容损坏，按无快照处理",
			zap.String("path", s.path), zap.Error(err))
		return nil
	}
	return &snap
}

// Clear 删除持久化快照与可能遗留的临时文件，用于重置启动。
// 文件不存在不视为错误。
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: 删除快照失败: %w", err)
	}
	if err := os.Remove(s.path + ".tmp"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: 删除临时快照失败: %w", err)
	}
	return nil
}
