package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CachePath>/<Collection>/<path>    # 派生文件
//
// 每个条目只有一个文件，ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将编码结果写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除派生文件，文件不存在不视为错误。
	Remove(ctx context.Context, locator Locator) error

	// EntryPath 返回 locator 对应的绝对路径，不检查文件是否存在。
	EntryPath(locator Locator) (string, error)

	// Root 返回集合的缓存根目录。
	Root(collection string) (string, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（集合 + 相对路径），路径均为 URL 风格的斜杠分隔。
type Locator struct {
	Collection string
	Path       string
}

// Entry 表示一个已存在的缓存条目，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator   `json:"locator"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于 HTTP 层直接流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存条目或源文件不存在（或不可读）。
var ErrNotFound = errors.New("not found")
