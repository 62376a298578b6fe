package submission

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	generateimage "nanogen-server/modules/generate-image"
)

// Generator - 요청 어댑터 경계
type Generator interface {
	GenerateOrEdit(ctx context.Context, prompt, sourceImage string, aspectRatio generateimage.AspectRatio) (string, error)
}

// Guard - 레플리카 간 in-flight 락 (Redis). nil이면 프로세스 내 가드만 사용
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Options - Session 설정
type Options struct {
	Delay    time.Duration // 프로바이더 호출 전 대기 (로딩 상태 노출용)
	Timeout  time.Duration // 프로바이더 호출 상한 (0이면 무제한)
	Guard    Guard
	OnChange func(Snapshot) // 상태가 바뀔 때마다 호출 (세션 락 보유 중)
	Now      func() time.Time
	NewID    func() string
}

// Session - 세션 하나의 상태를 소유하고 제출 수명주기를 구동
type Session struct {
	id        string
	generator Generator
	opts      Options

	mu    sync.Mutex
	state Snapshot
	wg    sync.WaitGroup
}

// NewSession - idle 상태로 시작
func NewSession(id string, generator Generator, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Session{
		id:        id,
		generator: generator,
		opts:      opts,
		state:     Initial(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot - 현재 상태
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch - 이벤트 적용. 상태가 바뀌었으면 true
// Submit은 프로바이더 호출을 시작하고, Resolve/Reject는 외부에서 받지 않음
func (s *Session) Dispatch(ctx context.Context, e Event) (Snapshot, bool) {
	switch e.(type) {
	case Submit:
		return s.submit(ctx)
	case Resolve, Reject:
		return s.Snapshot(), false
	}
	return s.apply(e)
}

// Wait - 진행 중인 요청이 끝날 때까지 대기
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) apply(e Event) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, e)
	if next == s.state {
		return s.state, false
	}
	s.commit(next)
	return next, true
}

// commit - s.mu 보유 상태에서 호출
func (s *Session) commit(next Snapshot) {
	s.state = next
	if s.opts.OnChange != nil {
		s.opts.OnChange(next)
	}
}

func (s *Session) submit(ctx context.Context) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, Submit{ID: s.opts.NewID()})
	if next.Status != StatusLoading || s.state.Status == StatusLoading {
		return s.state, false
	}

	var token string
	if s.opts.Guard != nil {
		t, ok, err := s.opts.Guard.Acquire(ctx, s.id, s.opts.Delay+s.opts.Timeout+time.Minute)
		switch {
		case err != nil:
			// Redis 장애 시 프로세스 내 가드만으로 진행
			log.Printf("⚠️  [Submission] Session %s: in-flight guard unavailable: %v", s.id, err)
		case !ok:
			log.Printf("🛑 [Submission] Session %s: request already in flight elsewhere", s.id)
			return s.state, false
		default:
			token = t
		}
	}

	s.commit(next)
	s.wg.Add(1)
	go s.run(next, token)

	log.Printf("🚀 [Submission] Session %s: submission %s started (edit: %v, aspect-ratio: %s)",
		s.id, next.SubmissionID, next.IsEdit(), next.AspectRatio)
	return next, true
}

// run - 프로바이더 호출 1회 후 Resolve/Reject 적용
// 요청을 시작한 HTTP 컨텍스트와 분리 (사용자 취소 없음)
func (s *Session) run(req Snapshot, token string) {
	defer s.wg.Done()

	imageURL, err := s.generate(req)

	if token != "" {
		if relErr := s.opts.Guard.Release(context.Background(), s.id, token); relErr != nil {
			log.Printf("⚠️  [Submission] Session %s: %v", s.id, relErr)
		}
	}

	if err != nil {
		log.Printf("❌ [Submission] Session %s: submission %s failed: %v", s.id, req.SubmissionID, err)
		s.apply(Reject{ID: req.SubmissionID, Message: err.Error()})
		return
	}

	log.Printf("✅ [Submission] Session %s: submission %s succeeded", s.id, req.SubmissionID)
	s.apply(Resolve{ID: req.SubmissionID, Result: Result{
		ImageURL:  imageURL,
		Prompt:    req.Prompt,
		Timestamp: s.opts.Now().UnixMilli(),
		IsEdit:    req.IsEdit(),
	}})
}

func (s *Session) generate(req Snapshot) (imageURL string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()

	if s.opts.Delay > 0 {
		time.Sleep(s.opts.Delay)
	}

	ctx := context.Background()
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	return s.generator.GenerateOrEdit(ctx, req.Prompt, req.SourceImage, req.AspectRatio)
}
