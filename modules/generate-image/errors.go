package generateimage

import (
	"errors"
	"fmt"
)

// Kind - 실패 분류
type Kind int

const (
	KindConfiguration Kind = iota + 1 // 자격 증명 누락
	KindRefusal                       // 이미지 대신 텍스트 응답
	KindEmptyResult                   // 이미지도 텍스트도 없음
	KindTransport                     // 네트워크/프로토콜 실패
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindRefusal:
		return "refusal"
	case KindEmptyResult:
		return "empty_result"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

const (
	MessageMissingAPIKey = "API Key is missing. Please check your environment configuration."
	MessageNoImage       = "No image was generated. Please try a different prompt."
	MessageTransport     = "Failed to generate image."
)

// Error - 어댑터가 반환하는 유일한 에러 타입. Message는 그대로 사용자에게 표시
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is - 같은 Kind면 일치 (errors.Is(err, ErrRefusal) 형태로 사용)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: MessageMissingAPIKey}
	ErrRefusal       = &Error{Kind: KindRefusal}
	ErrEmptyResult   = &Error{Kind: KindEmptyResult, Message: MessageNoImage}
	ErrTransport     = &Error{Kind: KindTransport}
)

func refusalError(text string) *Error {
	return &Error{
		Kind:    KindRefusal,
		Message: fmt.Sprintf("The model returned text instead of an image: \"%s\"", text),
	}
}

func transportError(err error) *Error {
	msg := MessageTransport
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// KindOf - 에러 분류 추출 (어댑터 에러가 아니면 KindTransport)
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}
