package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolateEnv 将源/缓存目录指向临时目录并关闭后台任务，返回临时根目录。
func isolateEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("IMGHUB_IMAGES_PATH", filepath.Join(root, "images"))
	t.Setenv("IMGHUB_CACHE_PATH", filepath.Join(root, "cache"))
	t.Setenv("IMGHUB_LOG_FILE_PATH", "")
	t.Setenv("IMGHUB_PRECACHE", "false")
	return root
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "imghub.env")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("写入 env 文件失败: %v", err)
	}
	return file
}

// unsetAfter 确保 godotenv 写入的进程环境变量在测试结束后被清理。
func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if _, exists := os.LookupEnv(key); exists {
			t.Skipf("%s 已在外部环境中设置", key)
		}
	}
	t.Cleanup(func() {
		for _, key := range keys {
			_ = os.Unsetenv(key)
		}
	})
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(60 * x), G: uint8(60 * y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码 png 失败: %v", err)
	}
	return buf.Bytes()
}
