package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	WebSocket  WebSocketConfig
	CORS       CORSConfig
	Logging    LoggingConfig
	Engine     EngineConfig
	Queue      QueueConfig
	Cache      CacheConfig
	Conflict   ConflictConfig
	Audit      AuditConfig
	Connectors ConnectorsConfig
}

type ServerConfig struct {
	Port     string
	Host     string
	GRPCPort string
	Env      string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxConnPerClient int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type EngineConfig struct {
	TickInterval       time.Duration
	BatchSize          int
	Workers            int
	MaxAttempts        int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	ReconcileInterval  time.Duration
	CleanupInterval    time.Duration
	TombstoneRetention time.Duration
	PauseThreshold     int
}

type QueueConfig struct {
	Capacity    int
	JournalPath string
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type ConflictConfig struct {
	PolicyFile string
}

type AuditConfig struct {
	Bucket        string
	Prefix        string
	Region        string
	Endpoint      string
	UsePathStyle  bool
	BatchSize     int
	FlushInterval time.Duration
}

type ConnectorsConfig struct {
	Endpoints    []ConnectorEndpoint
	Subscribers  []string
	Timeout      time.Duration
	PollInterval time.Duration
	RestartDelay time.Duration
	OutboxSize   int
}

// ConnectorEndpoint is one platform API the REST connector talks to.
type ConnectorEndpoint struct {
	Name    string
	BaseURL string
	Token   string
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", time.Hour)
	if err != nil {
		return nil, err
	}

	engine, err := loadEngine()
	if err != nil {
		return nil, err
	}

	cacheTTL, err := getEnvAsDuration("CACHE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	auditFlush, err := getEnvAsDuration("AUDIT_FLUSH_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	connectors, err := loadConnectors()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Host:     getEnv("HOST", "0.0.0.0"),
			GRPCPort: getEnv("GRPC_PORT", "9090"),
			Env:      getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "commerce_sync"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration: jwtExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize:  getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			MaxConnPerClient: getEnvAsInt("WS_MAX_CONN_PER_CLIENT", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
		Engine: engine,
		Queue: QueueConfig{
			Capacity:    getEnvAsInt("QUEUE_CAPACITY", 1000),
			JournalPath: getEnv("QUEUE_JOURNAL_PATH", ""),
		},
		Cache: CacheConfig{
			Size: getEnvAsInt("CACHE_SIZE", 10000),
			TTL:  cacheTTL,
		},
		Conflict: ConflictConfig{
			PolicyFile: getEnv("CONFLICT_POLICY_FILE", ""),
		},
		Audit: AuditConfig{
			Bucket:        getEnv("AUDIT_S3_BUCKET", ""),
			Prefix:        getEnv("AUDIT_S3_PREFIX", "audit"),
			Region:        getEnv("AUDIT_S3_REGION", ""),
			Endpoint:      getEnv("AUDIT_S3_ENDPOINT", ""),
			UsePathStyle:  getEnvAsBool("AUDIT_S3_PATH_STYLE", false),
			BatchSize:     getEnvAsInt("AUDIT_BATCH_SIZE", 500),
			FlushInterval: auditFlush,
		},
		Connectors: connectors,
	}, nil
}

func loadEngine() (EngineConfig, error) {
	var (
		cfg EngineConfig
		err error
	)
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"ENGINE_TICK_INTERVAL", time.Second, &cfg.TickInterval},
		{"RETRY_BACKOFF_INITIAL", time.Second, &cfg.BackoffInitial},
		{"RETRY_BACKOFF_MAX", 5 * time.Minute, &cfg.BackoffMax},
		{"RECONCILE_INTERVAL", 15 * time.Minute, &cfg.ReconcileInterval},
		{"CLEANUP_INTERVAL", 6 * time.Hour, &cfg.CleanupInterval},
		{"TOMBSTONE_RETENTION", 30 * 24 * time.Hour, &cfg.TombstoneRetention},
	}
	for _, d := range durations {
		if *d.dest, err = getEnvAsDuration(d.key, d.def); err != nil {
			return cfg, err
		}
	}

	cfg.BatchSize = getEnvAsInt("ENGINE_BATCH_SIZE", 100)
	cfg.Workers = getEnvAsInt("ENGINE_WORKERS", 4)
	cfg.MaxAttempts = getEnvAsInt("RETRY_MAX_ATTEMPTS", 5)
	cfg.PauseThreshold = getEnvAsInt("STORE_PAUSE_THRESHOLD", 5)

	if cfg.BackoffMax < cfg.BackoffInitial {
		return cfg, fmt.Errorf("invalid RETRY_BACKOFF_MAX: %s is below RETRY_BACKOFF_INITIAL", cfg.BackoffMax)
	}
	return cfg, nil
}

func loadConnectors() (ConnectorsConfig, error) {
	cfg := ConnectorsConfig{
		Subscribers: splitList(getEnv("CONNECTOR_SUBSCRIBERS", "")),
		OutboxSize:  getEnvAsInt("CONNECTOR_OUTBOX_SIZE", 256),
	}

	var err error
	if cfg.Timeout, err = getEnvAsDuration("CONNECTOR_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = getEnvAsDuration("CONNECTOR_POLL_INTERVAL", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RestartDelay, err = getEnvAsDuration("CONNECTOR_RESTART_DELAY", 5*time.Second); err != nil {
		return cfg, err
	}

	endpoints, err := parseEndpoints(getEnv("CONNECTORS", ""))
	if err != nil {
		return cfg, err
	}
	for i := range endpoints {
		endpoints[i].Token = getEnv("CONNECTOR_"+strings.ToUpper(endpoints[i].Name)+"_TOKEN", "")
	}
	cfg.Endpoints = endpoints
	return cfg, nil
}

// parseEndpoints reads "name=baseURL[,name=baseURL...]".
func parseEndpoints(value string) ([]ConnectorEndpoint, error) {
	var endpoints []ConnectorEndpoint
	seen := make(map[string]bool)
	for _, item := range splitList(value) {
		name, baseURL, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		baseURL = strings.TrimSpace(baseURL)
		if !ok || name == "" || baseURL == "" {
			return nil, fmt.Errorf("invalid CONNECTORS entry %q: want name=baseURL", item)
		}
		if seen[name] {
			return nil, fmt.Errorf("invalid CONNECTORS: duplicate connector %q", name)
		}
		seen[name] = true
		endpoints = append(endpoints, ConnectorEndpoint{Name: name, BaseURL: baseURL})
	}
	return endpoints, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
