package studio

import (
	"fmt"
	"strings"

	generateimage "nanogen-server/modules/generate-image"
	"nanogen-server/modules/submission"
)

// 클라이언트 → 서버 메시지 타입
const (
	MessageSetPrompt      = "set_prompt"
	MessageSelectImage    = "select_image"
	MessageClearImage     = "clear_image"
	MessageSetAspectRatio = "set_aspect_ratio"
	MessageSubmit         = "submit"
	MessageDismiss        = "dismiss"
	MessageRequestState   = "request_state"
)

// 서버 → 클라이언트 메시지 타입
const (
	MessageState = "state"
	MessageError = "error"
)

// InboundMessage - 웹소켓/REST 공통 이벤트 페이로드
type InboundMessage struct {
	Type        string `json:"type"`
	Prompt      string `json:"prompt,omitempty"`
	Image       string `json:"image,omitempty"` // data URI
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// OutboundMessage - 서버 푸시
type OutboundMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId,omitempty"`
	State     *submission.Snapshot `json:"state,omitempty"`
	Accepted  *bool                `json:"accepted,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// ToEvent - 메시지를 리듀서 이벤트로 변환 (request_state는 nil 이벤트)
func (m InboundMessage) ToEvent() (submission.Event, error) {
	switch m.Type {
	case MessageSetPrompt:
		return submission.SetPrompt{Prompt: m.Prompt}, nil
	case MessageSelectImage:
		if !strings.HasPrefix(m.Image, "data:image/") {
			return nil, fmt.Errorf("Please upload an image file")
		}
		if err := generateimage.ValidateSourceImage(m.Image); err != nil {
			return nil, fmt.Errorf("invalid image data: %w", err)
		}
		return submission.SelectImage{Image: m.Image}, nil
	case MessageClearImage:
		return submission.ClearImage{}, nil
	case MessageSetAspectRatio:
		ratio, ok := generateimage.ParseAspectRatio(m.AspectRatio)
		if !ok {
			return nil, fmt.Errorf("unsupported aspect ratio: %s", m.AspectRatio)
		}
		return submission.SetAspectRatio{AspectRatio: ratio}, nil
	case MessageSubmit:
		return submission.Submit{}, nil
	case MessageDismiss:
		return submission.Dismiss{}, nil
	case MessageRequestState:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown message type: %q", m.Type)
}
