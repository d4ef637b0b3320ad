package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<generation>/<method>/<path>        # 响应正文
//	<StoragePath>/<generation>/<method>/<path>.meta   # 状态码 + 头部
//
// 每个世代独占一个子目录，激活阶段通过 Generations/DropGeneration 做整体回收。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。正文或 .meta 任一缺失都返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将上游响应写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, locator Locator, meta Metadata, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文与 .meta 文件，通常用于条目失效清理。
	Remove(ctx context.Context, locator Locator) error

	// Generations 列出当前磁盘上存在的所有世代名。
	Generations(ctx context.Context) ([]string, error)

	// DropGeneration 整体删除一个世代目录；目录不存在不视为错误。
	DropGeneration(ctx context.Context, name string) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（世代 + 方法 + 相对路径），路径均为 URL 路径风格。
type Locator struct {
	Generation string
	Method     string
	Path       string
}

// Metadata 记录条目的响应状态与头部，序列化为 .meta JSON 文件。
type Metadata struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
}

// Entry 表示一次缓存命中结果，包含绝对文件路径、文件信息与响应元数据。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
	Metadata  Metadata
}

// ReadResult 组合 Entry 与正文 Reader，便于代理层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
