package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, config.Verification.AnswerTimeout.Duration)
	assert.Equal(t, 3*time.Minute, config.Verification.RequestCooldown.Duration)
	assert.Equal(t, 3800, config.Notifications.MaxMessageSize)
	assert.Equal(t, 15*time.Second, config.Notifications.FlushInterval())
	assert.Equal(t, filepath.Join("data", "verifications.json"), config.StorePath())
	assert.Equal(t, filepath.Join("data", "telegram-queue.json"), config.QueuePath())
	assert.Equal(t, "0.0.0.0:8080", config.Server.GetServerAddr())
	assert.Empty(t, config.Database.GetDatabaseURL())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"verification": {"destination": "verifications", "answer_timeout": "2m"},
		"roles": {"verified": "Peluche", "verifier": "Staff"},
		"notifications": {"max_message_size": 200, "telegram_chat_id": "file-chat"}
	}`)
	t.Setenv("TELEGRAM_CHAT_ID", "env-chat")
	t.Setenv("VERIFIER_ROLE", "<@&42>")
	t.Setenv("VERIFICATION_PROMPT_TIMEOUT", "90s")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "verifications", config.Verification.Destination)
	assert.Equal(t, 2*time.Minute, config.Verification.AnswerTimeout.Duration)
	assert.Equal(t, 90*time.Second, config.Verification.PromptTimeout.Duration)
	assert.Equal(t, "Peluche", config.Roles.Verified)
	assert.Equal(t, "<@&42>", config.Roles.Verifier)
	assert.Equal(t, "env-chat", config.Notifications.TelegramChatID)
	// floored
	assert.Equal(t, 1000, config.Notifications.MaxMessageSize)
}

func TestLoadConfigRejectsBrokenFile(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "config.json", "{"))
	assert.Error(t, err)
}

func TestLoadConfigEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "FORUM_CHANNEL_ID=123\nOWNER_ID=99\n")
	t.Setenv("FORUM_CHANNEL_ID", "")
	os.Unsetenv("FORUM_CHANNEL_ID")
	t.Setenv("OWNER_ID", "7")

	config, err := LoadConfig("", envFile, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "123", config.Verification.Destination)
	// variables already set win over the file
	assert.Equal(t, "7", config.Discord.OwnerID)
}

func TestQuestionsFromEnvironment(t *testing.T) {
	t.Setenv("QUESTIONS", `["How old are you?", "Why here?"]`)
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"How old are you?", "Why here?"}, config.Verification.Questions)
	assert.Empty(t, config.Verification.OverrideText)

	t.Setenv("QUESTIONS", "Tell us about yourself, then type done.")
	config, err = LoadConfig("")
	require.NoError(t, err)
	assert.Nil(t, config.Verification.Questions)
	assert.Equal(t, "Tell us about yourself, then type done.", config.Verification.OverrideText)

	settings := config.VerificationSettings()
	assert.Equal(t, "Tell us about yourself, then type done.", settings.OverrideText)
	assert.Equal(t, 30*time.Minute, settings.JustificationTimeout)
}

func TestRoleAliases(t *testing.T) {
	t.Setenv("PELUCHES_ROLE", "Peluche")
	t.Setenv("ARTIST_ROLE_TAG", "<@&500>")
	t.Setenv("MAJOR_ROLE", "Adult")
	t.Setenv("MAJEUR_ROLE", "Majeur")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "Peluche", config.Roles.Verified)
	assert.Equal(t, "<@&500>", config.Roles.Artist)
	assert.Equal(t, "Adult", config.Roles.Adult)
}

func TestQueueSettings(t *testing.T) {
	t.Setenv("NOTIFICATION_TRANSPORT", "SNS")
	t.Setenv("SNS_TOPIC_ARN", "arn:aws:sns:eu-west-1:1:verif")
	t.Setenv("DATA_DIR", "/var/lib/verifbot")

	config, err := LoadConfig("")
	require.NoError(t, err)
	queue := config.QueueSettings()
	assert.Equal(t, "sns", config.Notifications.Transport)
	assert.Equal(t, "arn:aws:sns:eu-west-1:1:verif", queue.Target)
	assert.Equal(t, "/var/lib/verifbot/telegram-queue.json", queue.Path)
	assert.True(t, queue.Enabled)
}

func TestValidateWarnings(t *testing.T) {
	config := Default()
	warnings := config.Validate()
	assert.Contains(t, warnings, "FORUM_CHANNEL_ID is not set: transcripts cannot be published")
	assert.Contains(t, warnings, "JWT_SECRET is not set: the admin API is disabled")

	config.Discord.Token = "t"
	config.Verification.Destination = "1"
	config.Roles = RolesConfig{Unverified: "1", Verified: "2", Verifier: "3"}
	config.Notifications.TelegramToken = "tok"
	config.Notifications.TelegramChatID = "chat"
	config.Security.JWTSecret = "secret"
	assert.Empty(t, config.Validate())
}

func TestDatabaseURL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "bot", Password: "pw", DBName: "verif", SSLMode: "disable"}
	assert.Equal(t, "postgres://bot:pw@db:5432/verif?sslmode=disable", db.GetDatabaseURL())
	db.URL = "postgres://override"
	assert.Equal(t, "postgres://override", db.GetDatabaseURL())
}
