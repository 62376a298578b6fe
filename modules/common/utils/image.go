package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF 디코더 등록
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"log"
	"net/http"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// ConvertToWebP - PNG/JPEG/GIF/WebP 바이너리를 WebP로 변환
func ConvertToWebP(imageData []byte, quality float32) ([]byte, error) {
	log.Printf("🔄 Converting image to WebP (quality: %.1f)", quality)

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("✅ %s converted to WebP: %d bytes → %d bytes", format, len(imageData), len(webpData))

	return webpData, nil
}

// IsImageMIME - image/* 여부
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// DetectImageMIME - 선언된 Content-Type이 이미지면 그대로, 아니면 내용으로 판별
// 이미지가 아니면 빈 문자열
func DetectImageMIME(data []byte, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		mime, _, _ := strings.Cut(declared, ";")
		mime = strings.ToLower(strings.TrimSpace(mime))
		if IsImageMIME(mime) {
			return mime
		}
		return ""
	}
	sniffed := http.DetectContentType(data)
	if IsImageMIME(sniffed) {
		return sniffed
	}
	return ""
}
