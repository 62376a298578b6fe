package datauri

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultMIMEType - MIME 타입이 선언되지 않은 경우 사용
const DefaultMIMEType = "image/png"

// CleanBase64 - "data:<mime>;base64," 접두사 제거
// 콤마가 없는 순수 base64 문자열은 그대로 반환
func CleanBase64(s string) string {
	if _, payload, found := strings.Cut(s, ","); found {
		return payload
	}
	return s
}

// MIMEType - data URI에 선언된 MIME 타입 (없으면 DefaultMIMEType)
func MIMEType(s string) string {
	header, _, found := strings.Cut(s, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return DefaultMIMEType
	}
	mime, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	if mime == "" {
		return DefaultMIMEType
	}
	return mime
}

// Build - MIME 타입과 base64 payload로 data URI 생성
func Build(mimeType, payload string) string {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, payload)
}

// Encode - 바이너리를 data URI로 인코딩
func Encode(mimeType string, data []byte) string {
	return Build(mimeType, base64.StdEncoding.EncodeToString(data))
}

// Decode - data URI(또는 순수 base64)를 바이너리로 디코딩
func Decode(s string) ([]byte, string, error) {
	payload := CleanBase64(s)
	if payload == "" {
		return nil, "", fmt.Errorf("empty image payload")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return data, MIMEType(s), nil
}
