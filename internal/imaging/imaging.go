// Package imaging はアバターのサムネイル生成とサイトアイコンの縮小を提供する。
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	// 追加の入力形式
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Format は出力画像形式。
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatICO  Format = "ico"
)

// MIMEType は形式に対応するContent-Typeを返す。
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatICO:
		return "image/x-icon"
	default:
		return "image/jpeg"
	}
}

const (
	jpegQuality = 85
	// maxPixels はデコードを許可する最大画素数。
	maxPixels = 40_000_000
)

var (
	// ErrUnsupportedImage は画像として解釈できない入力のエラー。
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")
	// ErrImageTooLarge は画素数が上限を超える画像のエラー。
	ErrImageTooLarge = errors.New("image dimensions too large")
	// ErrInvalidSize は出力サイズが正でない場合のエラー。
	ErrInvalidSize = errors.New("size must be positive")
)

// decode は画素数を確認してから画像をデコードする。
func decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrUnsupportedImage
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, nil
}

// fit はアスペクト比を保ったまま limit×limit に収まる大きさを返す。拡大はしない。
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return clampMin(nw, 1), clampMin(nh, 1)
}

func clampMin(v, lo int) int {
	if v < lo {
		return lo
	}
	return v
}

// Thumbnail は画像を size×size の白背景の中央に配置したJPEGを返す。
// 元画像は縦横比を保って縮小し、透過部分は白で合成する。
func Thumbnail(r io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	src, err := decode(r)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), size)

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offX := (size - w) / 2
	offY := (size - h) / 2
	draw.CatmullRom.Scale(canvas, image.Rect(offX, offY, offX+w, offY+h), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Scale は画像を指定幅に縦横比を保って拡大縮小し、指定形式でエンコードする。
func Scale(r io.Reader, width int, format Format) ([]byte, error) {
	if width <= 0 {
		return nil, ErrInvalidSize
	}
	src, err := decode(r)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	height := clampMin(int(float64(b.Dy())*float64(width)/float64(b.Dx())), 1)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if format == FormatJPEG {
		// JPEGは透過を持たないため白で下地を塗る
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	return encode(dst, format)
}

func encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatGIF:
		err = gif.Encode(&buf, img, nil)
	case FormatICO:
		return encodeICO(img)
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return nil, fmt.Errorf("unknown image format: %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
