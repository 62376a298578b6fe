package submission

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	generateimage "nanogen-server/modules/generate-image"
)

// Status - 제출 상태
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// MessageUnexpected - 메시지 없는 실패에 사용
const MessageUnexpected = "An unexpected error occurred."

// Result - 생성 결과 (메모리에만 존재)
type Result struct {
	ImageURL  string `json:"imageUrl"`
	Prompt    string `json:"prompt"`
	Timestamp int64  `json:"timestamp"` // unix ms
	IsEdit    bool   `json:"isEdit"`
}

// Snapshot - 한 세션의 불변 상태. Reduce로만 다음 상태를 만든다
type Snapshot struct {
	Prompt       string
	SourceImage  string
	AspectRatio  generateimage.AspectRatio
	Status       Status
	Message      string
	Result       *Result
	SubmissionID string
}

// Initial - idle, 1:1
func Initial() Snapshot {
	return Snapshot{
		AspectRatio: generateimage.DefaultAspectRatio,
		Status:      StatusIdle,
	}
}

// IsEdit - 참조 이미지가 있으면 편집 모드
func (s Snapshot) IsEdit() bool {
	return s.SourceImage != ""
}

// CanSubmit - 제출 버튼 활성 조건
func (s Snapshot) CanSubmit() bool {
	return s.Status != StatusLoading && strings.TrimSpace(s.Prompt) != ""
}

// Displayable - success 상태에서만 결과 반환
func (s Snapshot) Displayable() *Result {
	if s.Status != StatusSuccess {
		return nil
	}
	return s.Result
}

type snapshotJSON struct {
	Status         Status                    `json:"status"`
	Message        string                    `json:"message,omitempty"`
	Prompt         string                    `json:"prompt"`
	PromptLength   int                       `json:"promptLength"`
	SourceImage    string                    `json:"sourceImage,omitempty"`
	IsEdit         bool                      `json:"isEdit"`
	AspectRatio    generateimage.AspectRatio `json:"aspectRatio"`
	CanSubmit      bool                      `json:"canSubmit"`
	InputsDisabled bool                      `json:"inputsDisabled"`
	Result         *Result                   `json:"result,omitempty"`
	SubmissionID   string                    `json:"submissionId,omitempty"`
}

// MarshalJSON - UI가 바로 쓸 수 있는 파생 필드 포함
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Status:         s.Status,
		Message:        s.Message,
		Prompt:         s.Prompt,
		PromptLength:   utf8.RuneCountInString(s.Prompt),
		SourceImage:    s.SourceImage,
		IsEdit:         s.IsEdit(),
		AspectRatio:    s.AspectRatio,
		CanSubmit:      s.CanSubmit(),
		InputsDisabled: s.Status == StatusLoading,
		Result:         s.Displayable(),
		SubmissionID:   s.SubmissionID,
	})
}

// Event - Reduce 입력
type Event interface {
	event()
}

type (
	SetPrompt      struct{ Prompt string }
	SelectImage    struct{ Image string }
	ClearImage     struct{}
	SetAspectRatio struct{ AspectRatio generateimage.AspectRatio }
	// Submit - ID는 호출자가 발급 (Reduce를 순수하게 유지)
	Submit  struct{ ID string }
	Resolve struct {
		ID     string
		Result Result
	}
	Reject struct {
		ID      string
		Message string
	}
	Dismiss struct{}
)

func (SetPrompt) event()      {}
func (SelectImage) event()    {}
func (ClearImage) event()     {}
func (SetAspectRatio) event() {}
func (Submit) event()         {}
func (Resolve) event()        {}
func (Reject) event()         {}
func (Dismiss) event()        {}

// Reduce - (snapshot, event) → 다음 snapshot. 허용되지 않는 이벤트는 그대로 반환
func Reduce(s Snapshot, e Event) Snapshot {
	switch ev := e.(type) {
	case SetPrompt:
		if s.Status == StatusLoading {
			return s
		}
		s.Prompt = ev.Prompt

	case SelectImage:
		if s.Status == StatusLoading {
			return s
		}
		s.SourceImage = ev.Image

	case ClearImage:
		if s.Status == StatusLoading {
			return s
		}
		s.SourceImage = ""

	case SetAspectRatio:
		if s.Status == StatusLoading || !ev.AspectRatio.Valid() {
			return s
		}
		s.AspectRatio = ev.AspectRatio

	case Submit:
		if !s.CanSubmit() || ev.ID == "" {
			return s
		}
		// 이전 결과는 요청 전에 무효화
		s.Status = StatusLoading
		s.Message = ""
		s.Result = nil
		s.SubmissionID = ev.ID

	case Resolve:
		if s.Status != StatusLoading || ev.ID != s.SubmissionID {
			return s
		}
		result := ev.Result
		s.Status = StatusSuccess
		s.Result = &result

	case Reject:
		if s.Status != StatusLoading || ev.ID != s.SubmissionID {
			return s
		}
		s.Status = StatusError
		s.Message = ev.Message
		if s.Message == "" {
			s.Message = MessageUnexpected
		}

	case Dismiss:
		if s.Status != StatusError {
			return s
		}
		s.Status = StatusIdle
		s.Message = ""
	}
	return s
}
