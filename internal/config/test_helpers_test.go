package config

import (
	"path/filepath"
	"testing"
)

// isolateEnv 将源/缓存目录指向临时目录，避免测试依赖当前工作目录。
func isolateEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("IMGHUB_IMAGES_PATH", filepath.Join(root, "images"))
	t.Setenv("IMGHUB_CACHE_PATH", filepath.Join(root, "cache"))
	return root
}
