package generateimage

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

// Handler - 세션 없이 어댑터를 바로 호출하는 엔드포인트
type Handler struct {
	service      *Service
	maxBodyBytes int64
}

// NewHandler - maxBodyBytes는 요청 JSON 전체 상한 (base64 참조 이미지 포함)
func NewHandler(service *Service, maxBodyBytes int64) *Handler {
	return &Handler{service: service, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generate", h.HandleGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/aspect-ratios", h.HandleAspectRatios).Methods("GET")
	log.Println("✅ Generate routes registered: /api/generate, /api/aspect-ratios")
}

// HandleGenerate - POST /api/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// OPTIONS 요청 처리
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Printf("❌ [GenerateImage] Request body exceeds %d bytes", h.maxBodyBytes)
			writeJSON(w, http.StatusRequestEntityTooLarge, GenerateResponse{ErrorMessage: "Request is too large"})
			return
		}
		log.Printf("❌ [GenerateImage] Invalid request: %v", err)
		writeJSON(w, http.StatusBadRequest, GenerateResponse{ErrorMessage: "Invalid request format"})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{ErrorMessage: "Prompt is required"})
		return
	}

	if req.SourceImage != "" {
		if err := ValidateSourceImage(req.SourceImage); err != nil {
			log.Printf("❌ [GenerateImage] Invalid source image: %v", err)
			writeJSON(w, http.StatusBadRequest, GenerateResponse{ErrorMessage: "Invalid source image"})
			return
		}
	}

	aspectRatio, ok := ParseAspectRatio(req.AspectRatio)
	if !ok {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{ErrorMessage: "Unsupported aspect ratio: " + req.AspectRatio})
		return
	}

	imageURL, err := h.service.GenerateOrEdit(r.Context(), req.Prompt, req.SourceImage, aspectRatio)
	if err != nil {
		kind := KindOf(err)
		status := lo.Ternary(kind == KindConfiguration, http.StatusServiceUnavailable, http.StatusBadGateway)
		writeJSON(w, status, GenerateResponse{
			ErrorKind:    kind.String(),
			ErrorMessage: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:   true,
		ImageURL:  imageURL,
		IsEdit:    req.SourceImage != "",
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleAspectRatios - GET /api/aspect-ratios
func (h *Handler) HandleAspectRatios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AspectRatiosResponse{
		Default: DefaultAspectRatio,
		Options: lo.Map(AspectRatios, func(a AspectRatio, _ int) AspectRatioOption {
			return AspectRatioOption{Value: a, Label: a.Label()}
		}),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}
