package generateimage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"nanogen-server/modules/common/datauri"
	"nanogen-server/modules/common/gemini"
)

// Service - 요청 어댑터: 사용자 입력 → 프로바이더 파트, 프로바이더 응답 → data URI
type Service struct {
	sender gemini.Sender
	model  string
	apiKey func() string
}

// NewService - apiKey는 호출 시점마다 평가됨
func NewService(sender gemini.Sender, model string, apiKey func() string) *Service {
	return &Service{
		sender: sender,
		model:  model,
		apiKey: apiKey,
	}
}

// GenerateOrEdit - sourceImage가 비어 있으면 생성, 있으면 편집
// 프로바이더 호출은 정확히 1회 (재시도 없음)
func (s *Service) GenerateOrEdit(ctx context.Context, prompt, sourceImage string, aspectRatio AspectRatio) (string, error) {
	apiKey := s.apiKey()
	if apiKey == "" {
		log.Printf("❌ [GenerateImage] %s", MessageMissingAPIKey)
		return "", &Error{Kind: KindConfiguration, Message: MessageMissingAPIKey}
	}

	if !aspectRatio.Valid() {
		log.Printf("⚠️  [GenerateImage] Unknown aspect-ratio %q, using %s", aspectRatio, DefaultAspectRatio)
		aspectRatio = DefaultAspectRatio
	}

	parts := BuildParts(prompt, sourceImage)
	mode := "generate"
	if sourceImage != "" {
		mode = "edit"
	}

	log.Printf("🎨 [GenerateImage] Calling Gemini (model: %s, mode: %s, aspect-ratio: %s, prompt: %s)",
		s.model, mode, aspectRatio, truncateString(prompt, 50))

	resp, err := s.sender.Send(ctx, &gemini.Request{
		APIKey:      apiKey,
		Model:       s.model,
		Parts:       parts,
		AspectRatio: string(aspectRatio),
	})
	if err != nil {
		log.Printf("❌ [GenerateImage] Gemini API error: %v", err)
		return "", transportError(err)
	}

	imageURL, err := ExtractImage(resp)
	if err != nil {
		log.Printf("❌ [GenerateImage] %v", err)
		return "", err
	}

	log.Printf("✅ [GenerateImage] Image received (%d chars)", len(imageURL))
	return imageURL, nil
}

// ValidateSourceImage - 참조 이미지는 디코딩 가능한 비어 있지 않은 base64여야 함
func ValidateSourceImage(sourceImage string) error {
	data, _, err := datauri.Decode(sourceImage)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("empty image payload")
	}
	return nil
}

// BuildParts - 이미지 파트(있으면) 다음 텍스트 파트. 순서가 프로바이더에 의미 있음
func BuildParts(prompt, sourceImage string) []gemini.Part {
	parts := make([]gemini.Part, 0, 2)
	if sourceImage != "" {
		parts = append(parts, gemini.ImagePart(datauri.MIMEType(sourceImage), datauri.CleanBase64(sourceImage)))
	}
	return append(parts, gemini.TextPart(prompt))
}

// ExtractImage - 첫 번째 후보에서 처음 만나는 인라인 이미지를 data URI로 반환
// 이미지가 없으면 텍스트 유무에 따라 거절/빈 결과 에러
func ExtractImage(resp *gemini.Response) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &Error{Kind: KindEmptyResult, Message: MessageNoImage}
	}

	first := resp.Candidates[0]
	var text strings.Builder
	for _, part := range first.Parts {
		if part.IsImage() && part.Data != "" {
			return datauri.Build(part.MIMEType, part.Data), nil
		}
		text.WriteString(part.Text)
	}

	if text.Len() > 0 {
		return "", refusalError(text.String())
	}
	return "", &Error{Kind: KindEmptyResult, Message: MessageNoImage}
}

// truncateString - 로그용, 문자(rune) 단위로 자름
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
