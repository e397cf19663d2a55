package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config application-wide settings.
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
}

// ServerConfig HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig realtime connection settings.
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// CORSConfig CORS settings.
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig authentication settings.
type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	GoogleClientID     string
	SecureCookie       bool
}

// DatabaseConfig Postgres settings.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	LogQueries   bool
}

// RedisConfig Redis settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// SessionConfig drawing-session limits and realtime tuning.
type SessionConfig struct {
	MaxParticipants     int
	MaxSnapshots        int
	CursorFlushInterval time.Duration
}

// Load loads settings from environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize:  getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			HandshakeTimeout: getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:     getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			RefreshTokenExpiry: getDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			SecureCookie:       getBool("SECURE_COOKIE", false),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "drawboard"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5),
			LogQueries:   getBool("DB_LOG_QUERIES", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			Enabled:  getBool("REDIS_ENABLED", true),
		},
		Session: SessionConfig{
			MaxParticipants:     getInt("SESSION_MAX_PARTICIPANTS", 10),
			MaxSnapshots:        getInt("SESSION_MAX_SNAPSHOTS", 20),
			CursorFlushInterval: getDuration("CURSOR_FLUSH_INTERVAL", 50*time.Millisecond),
		},
	}
}

// getRequiredEnv fetches a required variable, exiting when missing.
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// bare numbers are taken as seconds
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
