package imaging

import (
	"bytes"
	"fmt"
	"image"
)

// Encoder is the re-encode capability: it turns source bytes into bytes of
// the requested format. Implementations must be deterministic so concurrent
// writers of the same cache key produce identical files.
type Encoder interface {
	Encode(src []byte, format Format) ([]byte, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(src []byte, format Format) ([]byte, error)

// Encode makes EncoderFunc satisfy Encoder.
func (f EncoderFunc) Encode(src []byte, format Format) ([]byte, error) {
	return f(src, format)
}

// DefaultJPEGQuality 与 IMGHUB_JPEG_QUALITY 的默认值一致。
const DefaultJPEGQuality = 85

// Transcoder 解码任意已注册的源格式，再用目标格式的 Codec 编码。
type Transcoder struct {
	opts EncodeOptions
}

// NewTranscoder 构造编码器，quality 越界时回退到默认值。
func NewTranscoder(jpegQuality int) *Transcoder {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Transcoder{opts: EncodeOptions{JPEGQuality: jpegQuality}}
}

// Encode decodes src and re-encodes it as format.
func (t *Transcoder) Encode(src []byte, format Format) ([]byte, error) {
	codec, ok := Lookup(format)
	if !ok {
		return nil, &RequestError{Value: string(format)}
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}

	var buf bytes.Buffer
	if err := codec.Encode(&buf, img, t.opts); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
