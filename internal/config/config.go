package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	ReposDir     string        `yaml:"repos_dir"`
	BaseBranch   string        `yaml:"base_branch"`
	LogFile      string        `yaml:"log_file"`

	Linear LinearConfig `yaml:"linear"`
	GitHub GitHubConfig `yaml:"github"`
	Claude ClaudeConfig `yaml:"claude"`
	Lock   LockConfig   `yaml:"lock"`
	Commit CommitConfig `yaml:"commit"`
	Retry  RetryConfig  `yaml:"retry"`
	API    APIConfig    `yaml:"api"`
}

type LinearConfig struct {
	APIKey string `yaml:"api_key"`
}

type GitHubConfig struct {
	Token           string `yaml:"token"`
	Username        string `yaml:"username"`
	TrustedReviewer string `yaml:"trusted_reviewer"`
}

type ClaudeConfig struct {
	Command      string        `yaml:"command"`
	Timeout      time.Duration `yaml:"timeout"`
	AllowedTools []string      `yaml:"allowed_tools"`
}

// LockConfig controls the label-based issue lock.
type LockConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"` // Wait before re-checking labels after locking
}

// CommitConfig is the git identity configured on freshly cloned repositories.
type CommitConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	RateLimitRetry time.Duration `yaml:"rate_limit_retry"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default configuration values
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 60 * time.Second,
		ReposDir:     "repos",
		BaseBranch:   "main",
		Claude: ClaudeConfig{
			Command:      "claude",
			Timeout:      30 * time.Minute,
			AllowedTools: []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"},
		},
		Lock: LockConfig{
			SettleDelay: 2 * time.Second,
		},
		Commit: CommitConfig{
			Name:  "adam",
			Email: "adam@users.noreply.github.com",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BackoffBase:    10 * time.Second,
			RateLimitRetry: 5 * time.Minute,
		},
		API: APIConfig{
			Enabled: true,
			Port:    8880,
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables in the format ${VAR}
	data = expandEnvVars(data)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks for fatal misconfiguration. Missing credentials are the one
// class of error that stops the process at startup.
func (c *Config) Validate() error {
	if c.Linear.APIKey == "" {
		return fmt.Errorf("linear.api_key is required")
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("github.token is required")
	}
	if c.GitHub.Username == "" {
		return fmt.Errorf("github.username is required")
	}
	return nil
}

// expandEnvVars replaces ${VAR} patterns with environment variable values
func expandEnvVars(data []byte) []byte {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(re.FindSubmatch(match)[1])
		return []byte(os.Getenv(varName))
	})
}
