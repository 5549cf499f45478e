package imaging

import (
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	// webp 仅用于解码源文件。
	_ "golang.org/x/image/webp"
)

func init() {
	MustRegister(Codec{
		Format: FormatPNG,
		MIME:   "image/png",
		Encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			enc := png.Encoder{CompressionLevel: png.BestCompression}
			return enc.Encode(w, img)
		},
	})
	MustRegister(Codec{
		Format: FormatJPG,
		MIME:   "image/jpeg",
		Lossy:  true,
		Encode: func(w io.Writer, img image.Image, opts EncodeOptions) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: opts.JPEGQuality})
		},
	})
	MustRegister(Codec{
		Format: FormatGIF,
		MIME:   "image/gif",
		Lossy:  true,
		Encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			return gif.Encode(w, img, nil)
		},
	})
	MustRegister(Codec{
		Format: FormatBMP,
		MIME:   "image/bmp",
		Encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			return bmp.Encode(w, img)
		},
	})
	MustRegister(Codec{
		Format: FormatTIFF,
		MIME:   "image/tiff",
		Encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		},
	})
}
