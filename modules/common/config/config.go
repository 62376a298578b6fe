package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis (REDIS_HOST가 비어 있으면 비활성)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Gemini API
	GeminiModel   string
	GeminiTimeout time.Duration

	// Submission
	SubmitDelay time.Duration

	// Download / Upload
	ProductName string
	WebPQuality float32
	MaxUploadMB int64

	// Server
	Port string
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	globalConfig = cfg

	log.Println("✅ Configuration loaded successfully")
	if cfg.RedisEnabled() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	} else {
		log.Printf("   Redis: disabled")
	}
	log.Printf("   Gemini: %s (timeout: %s)", cfg.GeminiModel, cfg.GeminiTimeout)
	if APIKey() == "" {
		// 키 누락은 요청 시점에 ConfigurationError로 표면화됨
		log.Println("⚠️  GEMINI_API_KEY is not set, generation requests will fail")
	}

	return cfg, nil
}

// FromEnv - 현재 프로세스 환경변수로 Config 생성 (.env 로드 없음)
func FromEnv() (*Config, error) {
	timeout, err := getDuration("GEMINI_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	delayMS, err := getInt("SUBMIT_DELAY_MS", 300)
	if err != nil {
		return nil, err
	}

	quality, err := getInt("WEBP_QUALITY", 90)
	if err != nil {
		return nil, err
	}

	maxUpload, err := getInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}

	useTLS := false
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	cfg := &Config{
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiTimeout: timeout,

		SubmitDelay: time.Duration(delayMS) * time.Millisecond,

		ProductName: getEnv("PRODUCT_NAME", "nanogen"),
		WebPQuality: float32(quality),
		MaxUploadMB: int64(maxUpload),

		Port: getEnv("PORT", "8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// APIKey - Gemini 자격 증명을 호출 시점에 환경변수에서 읽음
// GEMINI_API_KEY 우선, 없으면 API_KEY
func APIKey() string {
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("API_KEY"))
}

// validate - 설정값 범위 검증
func (c *Config) validate() error {
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.GeminiTimeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}
	if c.SubmitDelay < 0 {
		return fmt.Errorf("SUBMIT_DELAY_MS must not be negative")
	}
	if c.WebPQuality < 0 || c.WebPQuality > 100 {
		return fmt.Errorf("WEBP_QUALITY must be between 0 and 100")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// RedisEnabled - Redis 사용 여부
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// MaxUploadBytes - 업로드 최대 바이트
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// MaxRequestBytes - JSON/웹소켓 메시지 상한. base64 확장(4/3) + 헤더 여유
func (c *Config) MaxRequestBytes() int64 {
	return c.MaxUploadBytes()*4/3 + 64<<10
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// getDuration - "90s" 같은 duration 문자열 또는 초 단위 정수 허용
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
