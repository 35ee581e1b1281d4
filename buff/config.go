package buff

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config is the environment-driven configuration of a server. Every field
// has a default, so an empty environment yields a working config.
type Config struct {
	Addr            string
	Transport       Transport
	MaxHeaderBytes  int
	ReadChunk       int
	ReadTimeout     time.Duration
	LengthPolicy    LengthPolicy
	Workers         int
	Multicore       bool
	ReusePort       bool
	ServerHeader    string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFile         string
}

// LoadConfig reads .env (when present) and then the process environment.
func LoadConfig() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	return parseConfig()
}

func parseConfig() (*Config, error) {
	transport, err := parseTransport()
	if err != nil {
		return nil, err
	}
	policy, err := parseLengthPolicy()
	if err != nil {
		return nil, err
	}
	maxHeaderBytes, err := getenvInt("BUFF_MAX_HEADER_BYTES", defaultMaxHeaderBytes)
	if err != nil {
		return nil, err
	}
	readChunk, err := getenvInt("BUFF_READ_CHUNK", defaultReadChunk)
	if err != nil {
		return nil, err
	}
	workers, err := getenvInt("BUFF_WORKERS", defaultWorkers)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getenvDuration("BUFF_READ_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getenvDuration("BUFF_SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		return nil, err
	}

	return &Config{
		Addr:            getenv("BUFF_ADDR", ":8080"),
		Transport:       transport,
		MaxHeaderBytes:  maxHeaderBytes,
		ReadChunk:       readChunk,
		ReadTimeout:     readTimeout,
		LengthPolicy:    policy,
		Workers:         workers,
		Multicore:       getenvBool("BUFF_MULTICORE", false),
		ReusePort:       getenvBool("BUFF_REUSE_PORT", false),
		ServerHeader:    getenv("BUFF_SERVER_HEADER", defaultServerHeader),
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        getenv("BUFF_LOG_LEVEL", "info"),
		LogFile:         getenv("BUFF_LOG_FILE", ""),
	}, nil
}

// Options turns the config into Engine options.
func (c *Config) Options(log *zap.Logger) []Option {
	return []Option{
		WithTransport(c.Transport),
		WithMaxHeaderBytes(c.MaxHeaderBytes),
		WithReadChunk(c.ReadChunk),
		WithReadTimeout(c.ReadTimeout),
		WithLengthPolicy(c.LengthPolicy),
		WithWorkers(c.Workers),
		WithMulticore(c.Multicore),
		WithReusePort(c.ReusePort),
		WithServerHeader(c.ServerHeader),
		WithShutdownTimeout(c.ShutdownTimeout),
		WithLogger(log),
	}
}

func loadEnvFile() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

func parseTransport() (Transport, error) {
	switch t := Transport(strings.ToLower(getenv("BUFF_TRANSPORT", string(TransportNet)))); t {
	case TransportNet, TransportGNet:
		return t, nil
	default:
		return "", fmt.Errorf("invalid BUFF_TRANSPORT value %q", t)
	}
}

func parseLengthPolicy() (LengthPolicy, error) {
	switch strings.ToLower(getenv("BUFF_MISSING_LENGTH", "zero")) {
	case "zero":
		return LengthZero, nil
	case "unbounded":
		return LengthUnbounded, nil
	default:
		return 0, fmt.Errorf("invalid BUFF_MISSING_LENGTH value")
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val == "true"
}

func getenvInt(key string, def int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, val)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, val)
	}
	return d, nil
}
