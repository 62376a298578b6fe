package studio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"nanogen-server/modules/common/datauri"
	"nanogen-server/modules/common/utils"
	"nanogen-server/modules/submission"
)

const messageNotImage = "Please upload an image file"

// HandlerConfig - 다운로드/업로드 설정
type HandlerConfig struct {
	ProductName    string
	WebPQuality    float32
	MaxUploadBytes int64

	// MaxEventBytes - 이벤트 JSON / 웹소켓 메시지 상한 (data URI 포함)
	MaxEventBytes int64
}

// Handler - 세션 REST + 웹소켓 엔드포인트
type Handler struct {
	manager  *Manager
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	now      func() time.Time
}

// SessionResponse - 세션 엔드포인트 공통 응답
type SessionResponse struct {
	Success      bool                 `json:"success"`
	SessionID    string               `json:"sessionId,omitempty"`
	Accepted     *bool                `json:"accepted,omitempty"`
	State        *submission.Snapshot `json:"state,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// NewHandler - Handler 생성
func NewHandler(manager *Manager, cfg HandlerConfig) *Handler {
	return &Handler{
		manager: manager,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 개발용 - 모든 origin 허용
				return true
			},
		},
		now: time.Now,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.HandleCreateSession).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}", h.HandleGetSession).Methods("GET")
	r.HandleFunc("/api/sessions/{sessionId}/events", h.HandleEvent).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/image", h.HandleUploadImage).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/download", h.HandleDownload).Methods("GET")
	r.HandleFunc("/ws", h.HandleWebSocket)
	r.HandleFunc("/metrics", h.HandleMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", h.HandleCleanup).Methods("POST")
	log.Println("✅ Studio routes registered: /api/sessions, /ws, /metrics, /admin/cleanup")
}

// HandleCreateSession - POST /api/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	session := h.manager.Create()
	snap := session.Snapshot()
	writeJSON(w, http.StatusCreated, SessionResponse{Success: true, SessionID: session.ID(), State: &snap})
}

// HandleGetSession - GET /api/sessions/{sessionId}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap := session.Snapshot()
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, SessionID: session.ID(), State: &snap})
}

// HandleEvent - POST /api/sessions/{sessionId}/events
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if h.cfg.MaxEventBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxEventBytes)
	}

	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Printf("❌ [Studio] Event body exceeds %d bytes", h.cfg.MaxEventBytes)
			writeJSON(w, http.StatusRequestEntityTooLarge, SessionResponse{ErrorMessage: "Event is too large"})
			return
		}
		log.Printf("❌ [Studio] Invalid event body: %v", err)
		writeJSON(w, http.StatusBadRequest, SessionResponse{ErrorMessage: "Invalid request format"})
		return
	}

	event, err := msg.ToEvent()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SessionResponse{ErrorMessage: err.Error()})
		return
	}

	h.dispatch(w, r, session, event)
}

// HandleUploadImage - POST /api/sessions/{sessionId}/image (multipart "file")
func (h *Handler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, SessionResponse{ErrorMessage: "Image is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, SessionResponse{ErrorMessage: "Invalid upload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SessionResponse{ErrorMessage: "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SessionResponse{ErrorMessage: "Invalid upload"})
		return
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, SessionResponse{ErrorMessage: "Image is too large"})
		return
	}

	mimeType := utils.DetectImageMIME(data, header.Header.Get("Content-Type"))
	if mimeType == "" {
		log.Printf("⚠️  [Studio] Rejected non-image upload %q for session %s", header.Filename, session.ID())
		writeJSON(w, http.StatusUnsupportedMediaType, SessionResponse{ErrorMessage: messageNotImage})
		return
	}

	log.Printf("📷 [Studio] Session %s: image selected (%s, %d bytes)", session.ID(), mimeType, len(data))
	h.dispatch(w, r, session, submission.SelectImage{Image: datauri.Encode(mimeType, data)})
}

// HandleDownload - GET /api/sessions/{sessionId}/download[?format=webp]
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	result := session.Snapshot().Displayable()
	if result == nil {
		writeJSON(w, http.StatusNotFound, SessionResponse{ErrorMessage: "No image to download"})
		return
	}

	data, mimeType, err := datauri.Decode(result.ImageURL)
	if err != nil {
		log.Printf("❌ [Studio] Failed to decode result for session %s: %v", session.ID(), err)
		writeJSON(w, http.StatusInternalServerError, SessionResponse{ErrorMessage: "Failed to read image"})
		return
	}

	ext := "png"
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "png":
	case "webp":
		data, err = utils.ConvertToWebP(data, h.cfg.WebPQuality)
		if err != nil {
			log.Printf("❌ [Studio] WebP conversion failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, SessionResponse{ErrorMessage: "Failed to convert image"})
			return
		}
		mimeType, ext = "image/webp", "webp"
	default:
		writeJSON(w, http.StatusBadRequest, SessionResponse{ErrorMessage: "Unsupported format: " + format})
		return
	}

	filename := fmt.Sprintf("%s-%d.%s", h.cfg.ProductName, h.now().UnixMilli(), ext)
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleWebSocket - GET /ws?session=<id>
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	if h.cfg.MaxEventBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxEventBytes)
	}

	client := &Client{
		id:        uuid.NewString(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, 256),
	}

	log.Printf("🔍 New WebSocket connection - Session: %s, Client: %s", sessionID, client.id)

	e := h.manager.addClient(sessionID, client)
	snap := e.session.Snapshot()
	client.reply(e, OutboundMessage{Type: MessageState, SessionID: sessionID, State: &snap})

	go client.writePump()
	go client.readPump(h.manager, e, e.session)
}

// HandleMetrics - GET /metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Snapshot())
}

// HandleCleanup - POST /admin/cleanup
func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	cleaned := h.manager.Cleanup()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "Cleanup completed",
		"cleaned": cleaned,
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*submission.Session, bool) {
	sessionID := mux.Vars(r)["sessionId"]
	session, ok := h.manager.Get(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, SessionResponse{ErrorMessage: "Session not found"})
		return nil, false
	}
	return session, true
}

// dispatch - 이벤트 적용 결과 응답. 거부된 이벤트도 200 + accepted=false
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, session *submission.Session, event submission.Event) {
	if event == nil {
		snap := session.Snapshot()
		writeJSON(w, http.StatusOK, SessionResponse{Success: true, SessionID: session.ID(), State: &snap})
		return
	}

	// 프로바이더 호출 자체는 세션이 요청 컨텍스트와 분리해 실행
	snap, accepted := session.Dispatch(r.Context(), event)
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:   true,
		SessionID: session.ID(),
		Accepted:  &accepted,
		State:     &snap,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}
