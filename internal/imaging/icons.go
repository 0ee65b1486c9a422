package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// smallBaseMaxSize 以下のアイコンは小さいサイズ用の元画像から生成する。
const smallBaseMaxSize = 32

// IconSizes はファイル名ごとの正方形アイコンの一辺。
var IconSizes = map[string]int{
	"favicon.ico":            16,
	"favicon-16x16.png":      16,
	"favicon-32x32.png":      32,
	"apple-icon-57x57.png":   57,
	"apple-icon-60x60.png":   60,
	"ms-icon-70x70.png":      70,
	"apple-icon-72x72.png":   72,
	"apple-icon-76x76.png":   76,
	"favicon-96x96.png":      96,
	"apple-icon-114x114.png": 114,
	"apple-icon-120x120.png": 120,
	"apple-icon-144x144.png": 144,
	"ms-icon-144x144.png":    144,
	"ms-icon-150x150.png":    150,
	"apple-icon-152x152.png": 152,
	"apple-icon-180x180.png": 180,
	"favicon-192x192.png":    192,
	"ms-icon-310x310.png":    310,
}

// FormatForFile は拡張子から出力形式を決める。未知の拡張子はPNGとする。
func FormatForFile(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ico":
		return FormatICO
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".gif":
		return FormatGIF
	default:
		return FormatPNG
	}
}

// GenerateIcons はbasePathとsmallPathの画像からIconSizesのアイコン一式をoutDirに書き出す。
// 書き出したファイルのパスを名前順で返す。
func GenerateIcons(basePath, smallPath, outDir string) ([]string, error) {
	base, err := os.ReadFile(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read base image: %w", err)
	}
	small, err := os.ReadFile(smallPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read small base image: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	names := make([]string, 0, len(IconSizes))
	for name := range IconSizes {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		size := IconSizes[name]
		src := base
		if size <= smallBaseMaxSize {
			src = small
		}

		data, err := Scale(bytes.NewReader(src), size, FormatForFile(name))
		if err != nil {
			return written, fmt.Errorf("failed to scale %s: %w", name, err)
		}

		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		slog.Info("icon written", slog.String("path", path), slog.Int("size", size))
		written = append(written, path)
	}
	return written, nil
}

// encodeICO はPNGを1枚だけ格納したICOファイルを生成する。
func encodeICO(img image.Image) ([]byte, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode ico payload: %w", err)
	}

	b := img.Bounds()
	// 256px以上は0で表す
	dim := func(v int) uint8 {
		if v >= 256 {
			return 0
		}
		return uint8(v)
	}

	var buf bytes.Buffer
	header := struct {
		Reserved uint16
		Type     uint16
		Count    uint16
	}{0, 1, 1}
	entry := struct {
		Width      uint8
		Height     uint8
		Colors     uint8
		Reserved   uint8
		Planes     uint16
		BitCount   uint16
		BytesInRes uint32
		Offset     uint32
	}{
		Width:      dim(b.Dx()),
		Height:     dim(b.Dy()),
		Planes:     1,
		BitCount:   32,
		BytesInRes: uint32(pngBuf.Len()),
		Offset:     6 + 16,
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
		return nil, err
	}
	buf.Write(pngBuf.Bytes())
	return buf.Bytes(), nil
}
