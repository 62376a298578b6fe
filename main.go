package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nanogen-server/modules/common/config"
	"nanogen-server/modules/common/gemini"
	redisutil "nanogen-server/modules/common/redis"
	generateimage "nanogen-server/modules/generate-image"
	"nanogen-server/modules/studio"
	"nanogen-server/modules/submission"

	"github.com/gorilla/mux"
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "nanogen",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Generate Image 모듈 초기화
	service := generateimage.NewService(gemini.NewClient(), cfg.GeminiModel, config.APIKey)

	// Redis in-flight 가드 (선택)
	var guard submission.Guard
	if rdb := redisutil.Connect(cfg); rdb != nil {
		defer rdb.Close()
		guard = redisutil.NewInFlightLock(rdb)
	}

	manager := studio.NewManager(func(id string, onChange func(submission.Snapshot)) *submission.Session {
		return submission.NewSession(id, service, submission.Options{
			Delay:    cfg.SubmitDelay,
			Timeout:  cfg.GeminiTimeout,
			Guard:    guard,
			OnChange: onChange,
		})
	})

	// 정리 루틴 시작
	manager.StartCleanupRoutine(30 * time.Minute)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")

	generateimage.NewHandler(service, cfg.MaxRequestBytes()).RegisterRoutes(r)
	studio.NewHandler(manager, studio.HandlerConfig{
		ProductName:    cfg.ProductName,
		WebPQuality:    cfg.WebPQuality,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxEventBytes:  cfg.MaxRequestBytes(),
	}).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	log.Printf("🚀 NanoGen Server starting on port %s", cfg.Port)
	log.Printf("🎨 Generate: http://localhost:%s/api/generate", cfg.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?session=<id>", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}

	// 진행 중인 생성 요청 마무리 (상한: GEMINI_TIMEOUT)
	done := make(chan struct{})
	go func() {
		manager.WaitAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.SubmitDelay + cfg.GeminiTimeout):
		log.Println("⚠️  In-flight submissions did not finish before shutdown")
	}
	log.Println("👋 Server stopped")
}
