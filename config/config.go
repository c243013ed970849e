// Package config handles configuration loading from a TOML file, .env and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Discord  DiscordConfig
	Google   GoogleConfig
	LLM      LLMConfig
	State    StateConfig
	Delivery DeliveryConfig
	Assets   AssetsConfig
}

type DiscordConfig struct {
	Token              string `toml:"token"`
	GuildID            string `toml:"guild_id"`
	ChannelID          string `toml:"channel_id"`
	StickerID          string `toml:"sticker_id"`
	StickerPrefix      string `toml:"sticker_prefix"`
	StickerPickMode    string `toml:"sticker_pick_mode"`
	MemberPageSize     int    `toml:"member_page_size"`
	RESTTimeoutSeconds int    `toml:"rest_timeout_seconds"`
}

type GoogleConfig struct {
	APIKey                string   `toml:"api_key"`
	CalendarIDs           []string `toml:"calendar_ids"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

type LLMConfig struct {
	Provider              string `toml:"provider"`
	OllamaHost            string `toml:"ollama_host"`
	OllamaKey             string `toml:"ollama_key"`
	Model                 string `toml:"model"`
	GeminiKey             string `toml:"gemini_key"`
	GeminiModel           string `toml:"gemini_model"`
	PersonaFile           string `toml:"persona_file"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type StateConfig struct {
	DMDisabledPath string `toml:"dm_disabled_path"`
	DBPath         string `toml:"db_path"`
}

type DeliveryConfig struct {
	SuccessDelayMillis int `toml:"success_delay_ms"`
	FailureDelayMillis int `toml:"failure_delay_ms"`
}

type AssetsConfig struct {
	Dir string `toml:"dir"`
}

// Error is a configuration problem detected before any external call is made.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// envOverlay holds raw environment values. Aliases are resolved in apply.
type envOverlay struct {
	DiscordToken      string   `env:"DISCORD_TOKEN"`
	DiscordBotAPIKey  string   `env:"DISCORD_BOT_API_KEY"`
	BotToken          string   `env:"BOT_TOKEN"`
	DiscordGuildID    string   `env:"DISCORD_GUILD_ID"`
	GuildID           string   `env:"GUILD_ID"`
	FallbackChannelID string   `env:"DISCORD_FALLBACK_CHANNEL_ID"`
	ChannelID         string   `env:"CHANNEL_ID"`
	StickerID         string   `env:"DISCORD_STICKER_ID"`
	StickerPrefix     string   `env:"DISCORD_STICKER_PREFIX"`
	StickerPickMode   string   `env:"DISCORD_STICKER_PICK_MODE"`
	GoogleAPIKey      string   `env:"GOOGLE_API_KEY"`
	GoogleCalendarKey string   `env:"GOOGLE_CALENDAR_API_KEY"`
	GoogleCalenderKey string   `env:"GOOGLE_CALENDER_API_KEY"`
	GoogleCalendarIDs []string `env:"GOOGLE_CALENDAR_IDS" envSeparator:","`
	LLMProvider       string   `env:"LLM_PROVIDER"`
	OllamaHost        string   `env:"OLLAMA_HOST"`
	OllamaModel       string   `env:"OLLAMA_MODEL"`
	OllamaAPIKey      string   `env:"OLLAMA_API_KEY"`
	OllamaCloudAPIKey string   `env:"OLLAMA_CLOUD_API_KEY"`
	GeminiAPIKey      string   `env:"GEMINI_API_KEY"`
	GeminiModel       string   `env:"GEMINI_MODEL"`
	PersonaFile       string   `env:"MITSUHA_PERSONA_FILE"`
	DMDisabledPath    string   `env:"MITSUHA_DM_DISABLED_PATH"`
	DBPath            string   `env:"MITSUHA_DB_PATH"`
	AssetsDir         string   `env:"MITSUHA_ASSETS_DIR"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func override(dst *string, values ...string) {
	if v := firstNonEmpty(values...); v != "" {
		*dst = v
	}
}

func (o *envOverlay) apply(cfg *Config) {
	override(&cfg.Discord.Token, o.DiscordToken, o.DiscordBotAPIKey, o.BotToken)
	override(&cfg.Discord.GuildID, o.DiscordGuildID, o.GuildID)
	override(&cfg.Discord.ChannelID, o.FallbackChannelID, o.ChannelID)
	override(&cfg.Discord.StickerID, o.StickerID)
	override(&cfg.Discord.StickerPrefix, o.StickerPrefix)
	override(&cfg.Discord.StickerPickMode, o.StickerPickMode)
	override(&cfg.Google.APIKey, o.GoogleAPIKey, o.GoogleCalendarKey, o.GoogleCalenderKey)
	if ids := splitIDs(o.GoogleCalendarIDs); len(ids) > 0 {
		cfg.Google.CalendarIDs = ids
	}
	override(&cfg.LLM.Provider, o.LLMProvider)
	override(&cfg.LLM.OllamaHost, o.OllamaHost)
	override(&cfg.LLM.Model, o.OllamaModel)
	override(&cfg.LLM.OllamaKey, o.OllamaAPIKey, o.OllamaCloudAPIKey)
	override(&cfg.LLM.GeminiKey, o.GeminiAPIKey)
	override(&cfg.LLM.GeminiModel, o.GeminiModel)
	override(&cfg.LLM.PersonaFile, o.PersonaFile)
	override(&cfg.State.DMDisabledPath, o.DMDisabledPath)
	override(&cfg.State.DBPath, o.DBPath)
	override(&cfg.Assets.Dir, o.AssetsDir)
}

func splitIDs(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the TOML file at path (a missing file is fine), loads .env from
// the working directory and overlays the process environment. The result has
// defaults applied and the fields every command needs validated.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Msg: "decode config", Err: err}
		}
	}

	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Msg: "load .env", Err: err}
	}

	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return nil, &Error{Msg: "parse env", Err: err}
	}
	overlay.apply(&cfg)

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Discord.StickerPrefix == "" {
		cfg.Discord.StickerPrefix = "CSD"
	}
	cfg.Discord.StickerPickMode = strings.ToLower(strings.TrimSpace(cfg.Discord.StickerPickMode))
	if cfg.Discord.StickerPickMode == "" {
		cfg.Discord.StickerPickMode = "daily"
	}
	if cfg.Discord.MemberPageSize == 0 {
		cfg.Discord.MemberPageSize = 1000
	}
	if cfg.Discord.RESTTimeoutSeconds == 0 {
		cfg.Discord.RESTTimeoutSeconds = 30
	}
	if cfg.Google.RequestTimeoutSeconds == 0 {
		cfg.Google.RequestTimeoutSeconds = 30
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.OllamaHost == "" {
		cfg.LLM.OllamaHost = "https://ollama.com"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-oss:120b"
	}
	if cfg.LLM.GeminiModel == "" {
		cfg.LLM.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.LLM.RequestTimeoutSeconds == 0 {
		cfg.LLM.RequestTimeoutSeconds = 60
	}
	if cfg.State.DMDisabledPath == "" {
		cfg.State.DMDisabledPath = filepath.Join("data", "dm_disabled.json")
	}
	if cfg.State.DBPath == "" {
		cfg.State.DBPath = filepath.Join("data", "mitsuha.db")
	}
	if cfg.Delivery.SuccessDelayMillis == 0 {
		cfg.Delivery.SuccessDelayMillis = 600
	}
	if cfg.Delivery.FailureDelayMillis == 0 {
		cfg.Delivery.FailureDelayMillis = 200
	}
	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = "assets"
	}
}

func isSnowflake(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func (cfg *Config) validate() error {
	if cfg.Discord.Token == "" {
		return errorf("DISCORD_TOKEN is required")
	}
	if cfg.Discord.GuildID == "" {
		return errorf("DISCORD_GUILD_ID is required")
	}
	if !isSnowflake(cfg.Discord.GuildID) {
		return errorf("DISCORD_GUILD_ID %q must be a numeric ID", cfg.Discord.GuildID)
	}
	if cfg.Discord.ChannelID == "" {
		return errorf("DISCORD_FALLBACK_CHANNEL_ID is required")
	}
	if !isSnowflake(cfg.Discord.ChannelID) {
		return errorf("DISCORD_FALLBACK_CHANNEL_ID %q must be a numeric ID", cfg.Discord.ChannelID)
	}
	if cfg.Discord.StickerID != "" && !isSnowflake(cfg.Discord.StickerID) {
		return errorf("DISCORD_STICKER_ID must be an integer sticker ID")
	}
	if cfg.Discord.StickerPickMode != "daily" && cfg.Discord.StickerPickMode != "ai" {
		return errorf("DISCORD_STICKER_PICK_MODE %q is invalid (must be daily or ai)", cfg.Discord.StickerPickMode)
	}
	switch cfg.LLM.Provider {
	case "ollama":
	case "gemini":
		if cfg.LLM.GeminiKey == "" {
			return errorf("GEMINI_API_KEY is required when the LLM provider is gemini")
		}
	default:
		return errorf("LLM_PROVIDER %q is invalid (must be ollama or gemini)", cfg.LLM.Provider)
	}
	return nil
}

// RequireCalendars checks the settings needed by commands that read holiday calendars.
func (cfg *Config) RequireCalendars() error {
	if cfg.Google.APIKey == "" {
		return errorf("GOOGLE_API_KEY is required")
	}
	if len(cfg.Google.CalendarIDs) == 0 {
		return errorf("GOOGLE_CALENDAR_IDS is required (comma-separated Google Calendar IDs for public holiday calendars)")
	}
	return nil
}

// Resolve returns the config file path from MITSUHA_CONFIG env var,
// falling back to ~/.config/mitsuha/config.toml.
// The --config CLI flag is handled separately in main.go.
func Resolve() string {
	path := os.Getenv("MITSUHA_CONFIG")
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".config", "mitsuha", "config.toml")
	}
	path = os.ExpandEnv(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
