package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	Env           string `yaml:"env"`

	// WorkspaceDir holds per-run clone and build directories; it is wiped
	// between batches.
	WorkspaceDir string `yaml:"workspaceDir"`

	MaxConcurrent int  `yaml:"maxConcurrent"`
	DynamicSizing bool `yaml:"dynamicSizing"`
	MinBatchSize  int  `yaml:"minBatchSize"`
	MaxBatchSize  int  `yaml:"maxBatchSize"`

	CloneTimeoutSec int `yaml:"cloneTimeoutSec"`
	BuildTimeoutSec int `yaml:"buildTimeoutSec"`
	StartTimeoutSec int `yaml:"startTimeoutSec"`
	TestTimeoutSec  int `yaml:"testTimeoutSec"`

	PrimaryEngine   string `yaml:"primaryEngine"` // browser | httpdom
	FallbackEnabled *bool  `yaml:"fallbackEnabled"`

	// BasePort is where the free-port scan for started instances begins.
	BasePort int `yaml:"basePort"`

	// StartRatePerSec throttles instance starts so a batch of dev servers
	// does not stampede the host.
	StartRatePerSec float64 `yaml:"startRatePerSec"`

	// MemHighWatermark is the used-memory fraction above which dynamic
	// sizing shrinks the next batch.
	MemHighWatermark float64 `yaml:"memHighWatermark"`

	ResultStore string `yaml:"resultStore"` // memory | redis

	AdminToken string `yaml:"adminToken"`
	JWTSecret  string `yaml:"jwtSecret"`

	TracingEnabled   bool    `yaml:"tracingEnabled"`
	OTLPEndpoint     string  `yaml:"otlpEndpoint"`
	OTLPInsecure     bool    `yaml:"otlpInsecure"`
	TraceSampleRatio float64 `yaml:"traceSampleRatio"`
}

// LoadConfigOptional loads the YAML config at filePath when it exists and
// falls back to defaults plus environment overrides otherwise.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		c := &Config{}
		c.applyEnv()
		c.applyDefaults()
		return c, nil
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c := &Config{}
		c.applyEnv()
		c.applyDefaults()
		return c, nil
	}
	return LoadConfig(filePath)
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("GRADEQ_WORKSPACE_DIR"); v != "" {
		c.WorkspaceDir = v
	}
	if v := os.Getenv("GRADEQ_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrent = n
		}
	}
	if v := os.Getenv("GRADEQ_DYNAMIC_SIZING"); v != "" {
		c.DynamicSizing = parseBool(v)
	}
	if v := os.Getenv("GRADEQ_CLONE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CloneTimeoutSec = n
		}
	}
	if v := os.Getenv("GRADEQ_BUILD_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BuildTimeoutSec = n
		}
	}
	if v := os.Getenv("GRADEQ_START_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StartTimeoutSec = n
		}
	}
	if v := os.Getenv("GRADEQ_TEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TestTimeoutSec = n
		}
	}
	if v := os.Getenv("GRADEQ_PRIMARY_ENGINE"); v != "" {
		c.PrimaryEngine = v
	}
	if v := os.Getenv("GRADEQ_RESULT_STORE"); v != "" {
		c.ResultStore = v
	}
	if v := os.Getenv("GRADEQ_ADMIN_TOKEN"); v != "" {
		c.AdminToken = v
	}
	if v := os.Getenv("GRADEQ_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("GRADEQ_TRACING_ENABLED"); v != "" {
		c.TracingEnabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = os.TempDir() + "/gradeq-workspace"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 2
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 50
	}
	if c.MaxBatchSize < c.MinBatchSize {
		c.MaxBatchSize = c.MinBatchSize
	}
	if c.CloneTimeoutSec <= 0 {
		c.CloneTimeoutSec = 120
	}
	if c.BuildTimeoutSec <= 0 {
		c.BuildTimeoutSec = 600
	}
	if c.StartTimeoutSec <= 0 {
		c.StartTimeoutSec = 60
	}
	if c.TestTimeoutSec <= 0 {
		c.TestTimeoutSec = 90
	}
	if c.PrimaryEngine == "" {
		c.PrimaryEngine = "browser"
	}
	if c.FallbackEnabled == nil {
		enabled := true
		c.FallbackEnabled = &enabled
	}
	if c.BasePort <= 0 {
		c.BasePort = 3000
	}
	if c.StartRatePerSec <= 0 {
		c.StartRatePerSec = 1
	}
	if c.MemHighWatermark <= 0 || c.MemHighWatermark > 1 {
		c.MemHighWatermark = 0.85
	}
	if c.ResultStore == "" {
		c.ResultStore = "memory"
	}
	if c.TraceSampleRatio <= 0 || c.TraceSampleRatio > 1 {
		c.TraceSampleRatio = 1
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	switch c.PrimaryEngine {
	case "browser", "httpdom":
	default:
		errs = append(errs, "primaryEngine must be one of: browser, httpdom")
	}
	switch c.ResultStore {
	case "memory", "redis":
	default:
		errs = append(errs, "resultStore must be one of: memory, redis")
	}
	if c.ResultStore == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "redisAddr is required when resultStore is redis")
	}
	if !dev && strings.TrimSpace(c.AdminToken) == "" && strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, "adminToken or jwtSecret is required in non-dev")
	}
	if c.MaxConcurrent > c.MaxBatchSize {
		errs = append(errs, "maxConcurrent must not exceed maxBatchSize")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "1" || v == "true" || v == "yes"
}
