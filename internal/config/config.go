package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/internal/verification"
)

// Config represents the application configuration
type Config struct {
	Discord       DiscordConfig       `json:"discord"`
	Verification  VerificationConfig  `json:"verification"`
	Roles         RolesConfig         `json:"roles"`
	Notifications NotificationsConfig `json:"notifications"`
	Storage       StorageConfig       `json:"storage"`
	AWS           AWSConfig           `json:"aws"`
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
}

// Duration reads "10m"-style values from JSON and the environment.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// DiscordConfig represents the bot connection
type DiscordConfig struct {
	Token         string `json:"token" env:"DISCORD_TOKEN"`
	ApplicationID string `json:"application_id" env:"CLIENT_ID"`
	// GuildID scopes slash command registration; empty registers globally.
	GuildID string `json:"guild_id" env:"GUILD_ID"`
	OwnerID string `json:"owner_id" env:"OWNER_ID"`
}

// VerificationConfig represents the interview and review settings
type VerificationConfig struct {
	Questions []string `json:"questions"`
	// QuestionsRaw is either a JSON list of questions or free-form text.
	QuestionsRaw         string   `json:"-" env:"QUESTIONS"`
	OverrideText         string   `json:"override_text" env:"VERIF_MESSAGE_MD"`
	Destination          string   `json:"destination" env:"FORUM_CHANNEL_ID"`
	NotifyRoleID         string   `json:"notify_role_id" env:"NOTIFY_ROLE_ID"`
	AnswerTimeout        Duration `json:"answer_timeout" env:"VERIFICATION_ANSWER_TIMEOUT"`
	JustificationTimeout Duration `json:"justification_timeout" env:"VERIFICATION_JUSTIFICATION_TIMEOUT"`
	PromptTimeout        Duration `json:"prompt_timeout" env:"VERIFICATION_PROMPT_TIMEOUT"`
	RequestCooldown      Duration `json:"request_cooldown" env:"VERIFICATION_REQUEST_COOLDOWN"`
}

// RolesConfig holds role references: ids, <@&id> mentions or names
type RolesConfig struct {
	Unverified string `json:"unverified" env:"NON_VERIFIED_ROLE"`
	Verified   string `json:"verified" env:"PELUCHER_ROLE"`
	Adult      string `json:"adult" env:"MAJOR_ROLE"`
	Minor      string `json:"minor" env:"MINOR_ROLE"`
	Artist     string `json:"artist" env:"ARTIST_ROLE"`
	Verifier   string `json:"verifier" env:"VERIFIER_ROLE"`
}

// roleAliases are older variable names still honoured when the primary
// one is unset.
type roleAliases struct {
	Peluches  string `env:"PELUCHES_ROLE"`
	Pelucher  string `env:"PELUCHER"`
	Majeur    string `env:"MAJEUR_ROLE"`
	MajorID   string `env:"MAJOR_ROLE_ID"`
	Mineur    string `env:"MINEUR_ROLE"`
	MinorID   string `env:"MINOR_ROLE_ID"`
	ArtistID  string `env:"ARTIST_ROLE_ID"`
	ArtistTag string `env:"ARTIST_ROLE_TAG"`
}

// NotificationsConfig represents the external notification queue
type NotificationsConfig struct {
	Enabled bool `json:"enabled" env:"TELEGRAM_ENABLED"`
	// Transport is "telegram" or "sns".
	Transport         string `json:"transport" env:"NOTIFICATION_TRANSPORT"`
	TelegramToken     string `json:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    string `json:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL    string `json:"telegram_api_url" env:"TELEGRAM_API_URL"`
	SNSTopicARN       string `json:"sns_topic_arn" env:"SNS_TOPIC_ARN"`
	SNSSubject        string `json:"sns_subject" env:"SNS_SUBJECT"`
	MaxMessageSize    int    `json:"max_message_size" env:"TELEGRAM_MAX_MESSAGE_SIZE"`
	FlushIntervalSecs int    `json:"flush_interval_sec" env:"TELEGRAM_BATCH_INTERVAL_SEC"`
}

// StorageConfig represents local files and off-host backups
type StorageConfig struct {
	DataDir      string `json:"data_dir" env:"DATA_DIR"`
	BackupBucket string `json:"backup_bucket" env:"BACKUP_S3_BUCKET"`
	BackupPrefix string `json:"backup_prefix" env:"BACKUP_S3_PREFIX"`
}

// AWSConfig represents AWS client settings
type AWSConfig struct {
	Region          string `json:"region" env:"AWS_REGION"`
	AccessKeyID     string `json:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	// Endpoint targets S3-compatible storage.
	Endpoint string `json:"endpoint" env:"AWS_ENDPOINT_URL"`
}

// ServerConfig represents the admin API server
type ServerConfig struct {
	Enabled      bool     `json:"enabled" env:"SERVER_ENABLED"`
	Host         string   `json:"host" env:"SERVER_HOST"`
	Port         int      `json:"port" env:"SERVER_PORT"`
	ReadTimeout  Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
}

// DatabaseConfig represents the optional audit database
type DatabaseConfig struct {
	URL      string `json:"url" env:"DATABASE_URL"`
	Host     string `json:"host" env:"DATABASE_HOST"`
	Port     int    `json:"port" env:"DATABASE_PORT"`
	User     string `json:"user" env:"DATABASE_USER"`
	Password string `json:"password" env:"DATABASE_PASSWORD"`
	DBName   string `json:"db_name" env:"DATABASE_DBNAME"`
	SSLMode  string `json:"ssl_mode" env:"DATABASE_SSLMODE"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret" env:"JWT_SECRET"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level" env:"LOG_LEVEL"`
	Development bool   `json:"development" env:"LOG_DEVELOPMENT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	defaults := verification.DefaultConfig()
	return &Config{
		Verification: VerificationConfig{
			AnswerTimeout:        Duration{defaults.AnswerTimeout},
			JustificationTimeout: Duration{defaults.JustificationTimeout},
			PromptTimeout:        Duration{defaults.PromptTimeout},
			RequestCooldown:      Duration{defaults.RequestCooldown},
		},
		Notifications: NotificationsConfig{
			Enabled:           true,
			Transport:         "telegram",
			TelegramAPIURL:    notifications.DefaultTelegramAPIURL,
			SNSSubject:        "Verification",
			MaxMessageSize:    notifications.DefaultMaxMessageSize,
			FlushIntervalSecs: 15,
		},
		Storage: StorageConfig{
			DataDir:      "data",
			BackupPrefix: "verifbot",
		},
		Server: ServerConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{15 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
		},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from defaults, then the JSON file at
// configPath, then the environment. envFiles are loaded into the
// environment first without overriding variables already set; missing
// files are skipped.
func LoadConfig(configPath string, envFiles ...string) (*Config, error) {
	config := Default()

	// Load from file if exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	// Override with environment variables
	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	config.normalize()
	return config, nil
}

func overrideWithEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	var aliases roleAliases
	if err := env.Parse(&aliases); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	config.Roles.Verified = firstNonEmpty(config.Roles.Verified, aliases.Peluches, aliases.Pelucher)
	config.Roles.Adult = firstNonEmpty(config.Roles.Adult, aliases.Majeur, aliases.MajorID)
	config.Roles.Minor = firstNonEmpty(config.Roles.Minor, aliases.Mineur, aliases.MinorID)
	config.Roles.Artist = firstNonEmpty(config.Roles.Artist, aliases.ArtistID, aliases.ArtistTag)
	return nil
}

func (c *Config) normalize() {
	if raw := strings.TrimSpace(c.Verification.QuestionsRaw); raw != "" {
		var questions []string
		if err := json.Unmarshal([]byte(raw), &questions); err == nil && len(questions) > 0 {
			c.Verification.Questions = questions
		} else {
			// not a JSON list: the whole value is the free-form interview text
			c.Verification.OverrideText = raw
			c.Verification.Questions = nil
		}
	}

	n := &c.Notifications
	if n.MaxMessageSize <= 0 {
		n.MaxMessageSize = notifications.DefaultMaxMessageSize
	}
	if n.MaxMessageSize < notifications.MinMaxMessageSize {
		n.MaxMessageSize = notifications.MinMaxMessageSize
	}
	if n.FlushIntervalSecs <= 0 {
		n.FlushIntervalSecs = 15
	}
	n.Transport = strings.ToLower(strings.TrimSpace(n.Transport))
	if n.Transport == "" {
		n.Transport = "telegram"
	}
}

// Validate reports configuration gaps. None of them is fatal: the
// dependent step is skipped at runtime.
func (c *Config) Validate() []string {
	var warnings []string
	if c.Discord.Token == "" {
		warnings = append(warnings, "DISCORD_TOKEN is not set: the bot cannot connect")
	}
	if c.Verification.Destination == "" {
		warnings = append(warnings, "FORUM_CHANNEL_ID is not set: transcripts cannot be published")
	}
	if c.Roles.Unverified == "" {
		warnings = append(warnings, "NON_VERIFIED_ROLE is not set: new members get no unverified role")
	}
	if c.Roles.Verified == "" {
		warnings = append(warnings, "PELUCHER_ROLE is not set: accepted members get no verified role")
	}
	if c.Roles.Verifier == "" {
		warnings = append(warnings, "VERIFIER_ROLE is not set: only administrators can review")
	}
	if c.Notifications.Enabled {
		switch c.Notifications.Transport {
		case "telegram":
			if c.Notifications.TelegramToken == "" || c.Notifications.TelegramChatID == "" {
				warnings = append(warnings, "TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID is not set: notifications stay queued")
			}
		case "sns":
			if c.Notifications.SNSTopicARN == "" {
				warnings = append(warnings, "SNS_TOPIC_ARN is not set: notifications stay queued")
			}
		default:
			warnings = append(warnings, fmt.Sprintf("unknown notification transport %q: notifications stay queued", c.Notifications.Transport))
		}
	}
	if c.Server.Enabled && c.Security.JWTSecret == "" {
		warnings = append(warnings, "JWT_SECRET is not set: the admin API is disabled")
	}
	return warnings
}

// VerificationSettings converts the loaded values for the workflow.
func (c *Config) VerificationSettings() verification.Config {
	v := c.Verification
	return verification.Config{
		Questions:    v.Questions,
		OverrideText: v.OverrideText,
		Destination:  v.Destination,
		NotifyRoleID: v.NotifyRoleID,
		Roles: verification.RoleConfig{
			Unverified: c.Roles.Unverified,
			Verified:   c.Roles.Verified,
			Adult:      c.Roles.Adult,
			Minor:      c.Roles.Minor,
			Artist:     c.Roles.Artist,
			Verifier:   c.Roles.Verifier,
		},
		AnswerTimeout:        v.AnswerTimeout.Duration,
		JustificationTimeout: v.JustificationTimeout.Duration,
		PromptTimeout:        v.PromptTimeout.Duration,
		RequestCooldown:      v.RequestCooldown.Duration,
	}
}

// QueueSettings converts the loaded values for the notification queue.
func (c *Config) QueueSettings() notifications.QueueConfig {
	queue := notifications.DefaultQueueConfig()
	queue.Enabled = c.Notifications.Enabled
	queue.MaxMessageSize = c.Notifications.MaxMessageSize
	queue.Path = c.QueuePath()
	switch c.Notifications.Transport {
	case "sns":
		queue.Target = c.Notifications.SNSTopicARN
	default:
		queue.Target = c.Notifications.TelegramChatID
	}
	return queue
}

// FlushInterval returns the background flush period.
func (n NotificationsConfig) FlushInterval() time.Duration {
	return time.Duration(n.FlushIntervalSecs) * time.Second
}

// StorePath returns the verification store file.
func (c *Config) StorePath() string {
	return filepath.Join(c.Storage.DataDir, "verifications.json")
}

// QueuePath returns the notification queue file.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Storage.DataDir, "telegram-queue.json")
}

// GetDatabaseURL returns the database connection string, or "" when no
// database is configured
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
