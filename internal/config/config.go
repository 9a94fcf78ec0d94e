package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hackclub/mediafield/internal/widget"
	"github.com/joho/godotenv"
)

const (
	HostCloudinary = "cloudinary"
	HostR2         = "r2"
	HostLocal      = "local"
)

type Config struct {
	Port          string
	AppBaseURL    string
	SessionSecret string
	LogLevel      string

	CloudinaryCloudName    string
	CloudinaryUploadPreset string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	MediaFolder            string

	MediaHost         string
	LocalMediaDir     string
	LocalMediaBaseURL string

	JPEGQuality     int
	JPEGProgressive bool
	PNGStrip        bool

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2PublicBaseURL   string
	R2S3Endpoint      string
}

func Load() *Config {
	// .env in the parent directory first, then the working directory
	godotenv.Load(filepath.Join("..", ".env"))
	godotenv.Load(".env")

	port := getEnv("PORT", "8080")
	return &Config{
		Port:          port,
		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:"+port),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		CloudinaryCloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryUploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", ""),
		CloudinaryAPIKey:       getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
		MediaFolder:            getEnv("MEDIA_FOLDER", "admin"),

		MediaHost:         strings.ToLower(getEnv("MEDIA_HOST", HostCloudinary)),
		LocalMediaDir:     getEnv("LOCAL_MEDIA_DIR", "./media"),
		LocalMediaBaseURL: getEnv("LOCAL_MEDIA_BASE_URL", "http://localhost:"+port+"/media"),

		JPEGQuality:     getEnvInt("JPEG_QUALITY", 84),
		JPEGProgressive: getEnvBool("JPEG_PROGRESSIVE", true),
		PNGStrip:        getEnvBool("PNG_STRIP", true),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:          getEnv("R2_BUCKET", "mediafield-assets"),
		R2PublicBaseURL:   getEnv("R2_PUBLIC_BASE_URL", ""),
		R2S3Endpoint:      getEnv("R2_S3_ENDPOINT", ""),
	}
}

// Widget returns the fixed upload widget configuration.
func (c *Config) Widget() widget.Config {
	return widget.Config{
		CloudName:    c.CloudinaryCloudName,
		UploadPreset: c.CloudinaryUploadPreset,
		Multiple:     false,
		ResourceType: widget.ResourceImage,
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters, got %d", len(c.SessionSecret))
	}
	if c.CloudinaryCloudName == "" || c.CloudinaryUploadPreset == "" {
		return fmt.Errorf("CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET are required")
	}
	switch c.MediaHost {
	case HostCloudinary, HostLocal:
	case HostR2:
		if c.R2AccessKeyID == "" || c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2 credentials are required")
		}
		if c.R2PublicBaseURL == "" {
			return fmt.Errorf("R2_PUBLIC_BASE_URL is required")
		}
	default:
		return fmt.Errorf("unknown MEDIA_HOST %q", c.MediaHost)
	}
	return nil
}

// SecureCookies reports whether the app is served over HTTPS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.AppBaseURL, "https://")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
