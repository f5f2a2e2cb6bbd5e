package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 3000
	DefaultQuality      = 80
	DefaultMaxPixels    = 100_000_000

	transcodedMimeType = "image/jpeg"
	transcodedExt      = ".jpg"
)

var ErrImageTooLarge = errors.New("image has too many pixels to decode")

type TranscodeOptions struct {
	MaxDimension uint
	Quality      int
	// MaxPixels caps width*height of images that get decoded at all
	MaxPixels int64
}

// TranscodeResult always carries usable content: the re-encoded image when
// Transcoded is set, otherwise the original bytes and the reason in Err.
type TranscodeResult struct {
	Data       []byte
	MimeType   string
	Ext        string
	Transcoded bool
	Resized    bool
	Width      int
	Height     int
	Err        error
}

func fallback(original []byte, err error) TranscodeResult {
	return TranscodeResult{Data: original, Err: err}
}

// Transcode bounds both dimensions of an image to opts.MaxDimension (keeping the
// aspect ratio, never upscaling) and re-encodes it as JPEG. It never panics.
func Transcode(data []byte, opts TranscodeOptions) (result TranscodeResult) {
	if opts.MaxDimension == 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	defer func() {
		if r := recover(); r != nil {
			result = fallback(data, fmt.Errorf("transcode panic: %v", r))
		}
	}()

	// The header is enough to reject decompression bombs before any pixel buffer is allocated
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fallback(data, fmt.Errorf("decode config: %w", err))
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > opts.MaxPixels {
		return fallback(data, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, header.Width, header.Height))
	}

	// Decode applies EXIF orientation, the re-encoded JPEG carries no EXIF data
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fallback(data, fmt.Errorf("decode: %w", err))
	}
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return fallback(data, errors.New("empty image"))
	}
	resized := false
	if uint(size.X) > opts.MaxDimension || uint(size.Y) > opts.MaxDimension {
		img = resize.Thumbnail(opts.MaxDimension, opts.MaxDimension, img, resize.Lanczos3)
		resized = true
	}
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return fallback(data, fmt.Errorf("encode: %w", err))
	}
	newSize := img.Bounds().Size()
	return TranscodeResult{
		Data:       buf.Bytes(),
		MimeType:   transcodedMimeType,
		Ext:        transcodedExt,
		Transcoded: true,
		Resized:    resized,
		Width:      newSize.X,
		Height:     newSize.Y,
	}
}
