package gemini

import "context"

// PartKind - 파트 종류
type PartKind int

const (
	PartText PartKind = iota
	PartImage
)

// Part - 요청/응답의 한 조각 (인라인 이미지 또는 텍스트)
// Data는 base64 문자열
type Part struct {
	Kind     PartKind
	MIMEType string
	Data     string
	Text     string
}

// ImagePart - 인라인 이미지 파트 생성
func ImagePart(mimeType, base64Data string) Part {
	return Part{Kind: PartImage, MIMEType: mimeType, Data: base64Data}
}

// TextPart - 텍스트 파트 생성
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// IsImage - 인라인 이미지 파트 여부 (payload 유무와 무관)
func (p Part) IsImage() bool {
	return p.Kind == PartImage
}

// Request - 프로바이더 호출 1회분
type Request struct {
	APIKey      string
	Model       string
	Parts       []Part
	AspectRatio string
}

// Candidate - 후보 출력 하나
type Candidate struct {
	Parts []Part
}

// Response - 프로바이더 응답
type Response struct {
	Candidates []Candidate
}

// Sender - 프로바이더 호출 경계
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}
