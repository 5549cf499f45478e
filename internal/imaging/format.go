package imaging

import (
	"fmt"
	"path"
	"strings"
)

// Format 是输出格式的规范化扩展名（不含点），例如 "jpg"。
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// PassThrough 是源文件本身的格式：请求该格式时直接返回原文件，不经过缓存。
const PassThrough = FormatPNG

// DefaultLossy 是预缓存与删除操作使用的固定目标格式。
const DefaultLossy = FormatJPG

// IsPassThrough reports whether serving f requires no re-encoding.
func (f Format) IsPassThrough() bool {
	return f == PassThrough
}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ContentType 返回格式对应的 MIME，未注册时返回 application/octet-stream。
func (f Format) ContentType() string {
	if codec, ok := Lookup(f); ok && codec.MIME != "" {
		return codec.MIME
	}
	return "application/octet-stream"
}

// RequestError 表示客户端请求了不在枚举内的输出格式。
type RequestError struct {
	Value string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("Invalid image type: %s", e.Value)
}

// ParseFormat 解析 ?type= 查询参数。空值表示 pass-through；未知值返回 *RequestError。
func ParseFormat(raw string) (Format, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PassThrough, nil
	}
	codec, ok := Lookup(Format(strings.ToLower(trimmed)))
	if !ok {
		return "", &RequestError{Value: raw}
	}
	return codec.Format, nil
}

// SwapExt replaces the extension of the slash-separated relative path p with
// f's extension, keeping every directory component intact. A path without an
// extension simply gains one.
func SwapExt(p string, f Format) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return base + f.Ext()
}
