package generateimage

import (
	"github.com/samber/lo"
)

// AspectRatio - 출력 이미지 비율 (닫힌 집합)
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"

	DefaultAspectRatio = AspectSquare
)

// AspectRatios - 선택 가능한 비율 (UI 표시 순서)
var AspectRatios = []AspectRatio{AspectSquare, AspectPortrait, AspectLandscape, AspectWide, AspectTall}

var aspectLabels = map[AspectRatio]string{
	AspectSquare:    "Square",
	AspectPortrait:  "Portrait",
	AspectLandscape: "Landscape",
	AspectWide:      "Wide",
	AspectTall:      "Tall",
}

// Valid - 허용된 비율인지
func (a AspectRatio) Valid() bool {
	return lo.Contains(AspectRatios, a)
}

// Label - 표시용 이름
func (a AspectRatio) Label() string {
	return aspectLabels[a]
}

// ParseAspectRatio - 빈 값은 기본값(1:1), 허용되지 않은 값은 false
func ParseAspectRatio(s string) (AspectRatio, bool) {
	if s == "" {
		return DefaultAspectRatio, true
	}
	a := AspectRatio(s)
	return a, a.Valid()
}

// GenerateRequest - POST /api/generate 요청
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	SourceImage string `json:"sourceImage,omitempty"` // data URI (있으면 편집)
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// GenerateResponse - POST /api/generate 응답
type GenerateResponse struct {
	Success      bool   `json:"success"`
	ImageURL     string `json:"image_url,omitempty"` // data URI
	IsEdit       bool   `json:"is_edit,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// AspectRatioOption - GET /api/aspect-ratios 항목
type AspectRatioOption struct {
	Value AspectRatio `json:"value"`
	Label string      `json:"label"`
}

// AspectRatiosResponse - GET /api/aspect-ratios 응답
type AspectRatiosResponse struct {
	Default AspectRatio         `json:"default"`
	Options []AspectRatioOption `json:"options"`
}
