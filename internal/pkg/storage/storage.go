package storage

import (
	"context"
	"io"
)

// Storage 产物存储接口
// 按 key 存放每场景的音频/视频产物；key 存在即代表该步骤已完成，
// 重跑时直接复用（幂等缓存）
type Storage interface {
	// Put 写入产物（要求实现保证原子可见：写完才可被 Exists 观察到）
	Put(ctx context.Context, key string, data io.Reader) error

	// Get 读取产物
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists 检查产物是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Delete 删除产物
	Delete(ctx context.Context, key string) error

	// GetStorageType 获取存储类型
	GetStorageType() string
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // 本地文件系统
	StorageTypeOSS   StorageType = "oss"   // 阿里云OSS
)
