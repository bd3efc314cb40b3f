package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// 默认值，与线上聊天服务保持一致。
const (
	DefaultServerURL       = "http://dummy-chat-server.tribechat.pro/api"
	DefaultPollInterval    = 3000 * time.Millisecond
	DefaultRequestTimeout  = 10 * time.Second
	DefaultMaxResponseSize = "16MiB"
	DefaultSelfID          = "you"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Server ServerConfig
	Remote RemoteConfig
	Log    LogConfig
	Dummy  DummyConfig
}

// Load 加载配置：先读取可选的 YAML 文件，再用环境变量覆盖。
// path 为空时只读取环境变量。
func Load(path string) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	remote, err := loadRemoteConfig(file)
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig(file)
	if err != nil {
		return nil, err
	}

	dummy, err := loadDummyConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Remote: remote, Log: log, Dummy: dummy}, nil
}

// fileConfig 对应 YAML 配置文件的结构，所有字段均为可选。
type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Remote struct {
		URL             string  `yaml:"url"`
		PollInterval    string  `yaml:"pollInterval"`
		RequestTimeout  string  `yaml:"requestTimeout"`
		RPS             float64 `yaml:"rps"`
		Burst           int     `yaml:"burst"`
		MaxResponseSize string  `yaml:"maxResponseSize"`
		SelfID          string  `yaml:"selfId"`
	} `yaml:"remote"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Dummy struct {
		Port string `yaml:"port"`
	} `yaml:"dummy"`
}

func readFile(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return file, nil
}

// ServerConfig 描述本地 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析本地 API 监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	addr, err := parseAddr("PORT", getEnvOrDefault("PORT", orDefault(file.Server.Port, "8080")))
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{Addr: addr}, nil
}

// RemoteConfig 描述远端聊天服务及同步参数。
type RemoteConfig struct {
	BaseURL           string
	PollInterval      time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxResponseSize   int64
	// SelfID 是服务端为本客户端发送的消息填写的作者 ID。
	SelfID string
}

func loadRemoteConfig(file fileConfig) (RemoteConfig, error) {
	baseURL := getEnvOrDefault("CHAT_SERVER_URL", orDefault(file.Remote.URL, DefaultServerURL))
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return RemoteConfig{}, fmt.Errorf("invalid CHAT_SERVER_URL value: %q", baseURL)
	}

	pollInterval, err := parseDurationEnv("CHAT_POLL_INTERVAL", file.Remote.PollInterval, DefaultPollInterval)
	if err != nil {
		return RemoteConfig{}, err
	}
	if pollInterval <= 0 {
		return RemoteConfig{}, fmt.Errorf("CHAT_POLL_INTERVAL must be positive, got %s", pollInterval)
	}

	timeout, err := parseDurationEnv("CHAT_REQUEST_TIMEOUT", file.Remote.RequestTimeout, DefaultRequestTimeout)
	if err != nil {
		return RemoteConfig{}, err
	}

	rps := file.Remote.RPS
	if override, err := parseOptionalFloatEnv("CHAT_REMOTE_RPS"); err != nil {
		return RemoteConfig{}, err
	} else if override != nil {
		rps = *override
	}
	if rps < 0 {
		return RemoteConfig{}, fmt.Errorf("CHAT_REMOTE_RPS must not be negative, got %v", rps)
	}

	burst := file.Remote.Burst
	if override, err := parseOptionalIntEnv("CHAT_REMOTE_BURST"); err != nil {
		return RemoteConfig{}, err
	} else if override != nil {
		burst = *override
	}
	if burst < 0 {
		burst = 0
	}

	maxSize, err := parseBytesEnv("CHAT_MAX_RESPONSE_SIZE", orDefault(file.Remote.MaxResponseSize, DefaultMaxResponseSize))
	if err != nil {
		return RemoteConfig{}, err
	}

	return RemoteConfig{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		PollInterval:      pollInterval,
		RequestTimeout:    timeout,
		RequestsPerSecond: rps,
		Burst:             burst,
		MaxResponseSize:   maxSize,
		SelfID:            getEnvOrDefault("CHAT_SELF_ID", orDefault(file.Remote.SelfID, DefaultSelfID)),
	}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(file fileConfig) (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", orDefault(file.Log.Format, "text")))
	if format != "text" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value: %q", format)
	}
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", orDefault(file.Log.Level, "info")),
		Format: format,
	}, nil
}

// DummyConfig 描述本地模拟聊天服务的配置。
type DummyConfig struct {
	Addr string
}

func loadDummyConfig(file fileConfig) (DummyConfig, error) {
	addr, err := parseAddr("DUMMY_PORT", getEnvOrDefault("DUMMY_PORT", orDefault(file.Dummy.Port, "8090")))
	if err != nil {
		return DummyConfig{}, err
	}
	return DummyConfig{Addr: addr}, nil
}

// parseAddr 接受 "8080"、":8080" 或 "127.0.0.1:8080"。
func parseAddr(key, port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}
	return ":" + port, nil
}

func orDefault(value, defaultValue string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv 读取时长，支持 "3s" 这样的写法，纯数字按毫秒处理。
func parseDurationEnv(key, fileValue string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnvOrDefault(key, strings.TrimSpace(fileValue))
	if raw == "" {
		return defaultValue, nil
	}

	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(millis) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseBytesEnv 读取字节大小，支持 "16MiB"、"512kB" 等写法。
func parseBytesEnv(key, defaultValue string) (int64, error) {
	raw := getEnvOrDefault(key, defaultValue)
	val, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val == 0 || val > 1<<40 {
		return 0, errors.New(key + " must be between 1 byte and 1TiB")
	}
	return int64(val), nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
