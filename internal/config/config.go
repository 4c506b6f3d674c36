package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Simulation
	TickHz    int
	Substeps  int
	MaxFrames uint64

	// Debug feeds
	HTTPAddr  string
	HTTP3Addr string
	QUICAddr  string

	// Logging
	LogLevel string

	// Window
	WindowTitle  string
	WindowWidth  int
	WindowHeight int
}

// Load reads .env if present, then the environment, falling back to defaults.
func Load() *Config {
	godotenv.Load()

	return &Config{
		TickHz:    getEnvInt("REVOLUTE_TICK_HZ", 60),
		Substeps:  getEnvInt("REVOLUTE_SUBSTEPS", 4),
		MaxFrames: uint64(max(getEnvInt("REVOLUTE_MAX_FRAMES", 0), 0)),

		HTTPAddr:  getEnv("REVOLUTE_HTTP_ADDR", ":8080"),
		HTTP3Addr: getEnv("REVOLUTE_HTTP3_ADDR", ""),
		QUICAddr:  getEnv("REVOLUTE_QUIC_ADDR", ""),

		LogLevel: getEnv("REVOLUTE_LOG_LEVEL", "info"),

		WindowTitle:  getEnv("REVOLUTE_WINDOW_TITLE", "RevoluteJointTest"),
		WindowWidth:  getEnvInt("REVOLUTE_WINDOW_WIDTH", 360),
		WindowHeight: getEnvInt("REVOLUTE_WINDOW_HEIGHT", 640),
	}
}

// MaxTickHz caps the simulation rate.
const MaxTickHz = 1000

// Timestep is the length of one tick. Non-positive rates fall back to 60 Hz
// and rates above MaxTickHz are clamped to it.
func (c *Config) Timestep() time.Duration {
	if c.TickHz <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(min(c.TickHz, MaxTickHz))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
