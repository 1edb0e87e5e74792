// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken = "TELEGRAM_TOKEN"
	KeyBotToken      = "BOT_TOKEN"
	KeyAdminIDs      = "ADMIN_IDS"
	KeyBotName       = "BOT_NAME"
	KeyAPIID         = "API_ID"
	KeyAPIHash       = "API_HASH"
	KeyGroupsFile    = "GROUPS_FILE"
	KeyMongoURI      = "MONGO_URI"
	KeyMongoDB       = "MONGO_DB"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv     = EnvProduction
	DefaultLogLevel   = "info"
	DefaultHTTPPort   = 8080
	DefaultGroupsFile = "data/managed_groups.json"

	// Recommended database names by environment.
	DefaultMongoDBProd = "group_admin_bot"
	DefaultMongoDBDev  = "group_admin_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
		Notes:       KeyBotToken + " is accepted when " + KeyTelegramToken + " is unset.",
	},
	{
		Key:         KeyAdminIDs,
		Example:     "8451372304,8580994127",
		Required:    true,
		Description: "Telegram user ids allowed to run operator commands (broadcast, reply, registry edits).",
		Notes:       "Comma or whitespace separated.",
	},
	{
		Key:         KeyBotName,
		Example:     "SigmaChanBot",
		Description: "Display name used in replies; defaults to the bot's Telegram first name.",
	},
	{
		Key:         KeyAPIID,
		Example:     "123456",
		Description: "Telegram application id from my.telegram.org.",
		Notes:       "Optional; the HTTP Bot API transport only needs the token.",
	},
	{
		Key:         KeyAPIHash,
		Example:     "0123456789abcdef",
		Description: "Telegram application secret from my.telegram.org.",
		Notes:       "Required when " + KeyAPIID + " is set.",
	},
	{
		Key:         KeyGroupsFile,
		Example:     DefaultGroupsFile,
		Default:     DefaultGroupsFile,
		Description: "Path of the managed groups JSON document.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string for user tracking.",
		Notes:       "Optional; user tracking and /listusers are disabled when unset.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Description: "MongoDB database name.",
		Notes:       "Defaults: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port; 0 disables the endpoint.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken string
	AdminIDs      []int64
	BotName       string
	APIID         int
	APIHash       string
	GroupsFile    string
	MongoURI      string
	MongoDB       string
	AppEnv        string
	LogLevel      string
	HTTPPort      int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken: firstNonEmpty(os.Getenv(KeyTelegramToken), os.Getenv(KeyBotToken)),
		BotName:       strings.TrimSpace(os.Getenv(KeyBotName)),
		APIHash:       strings.TrimSpace(os.Getenv(KeyAPIHash)),
		GroupsFile:    firstNonEmpty(os.Getenv(KeyGroupsFile), DefaultGroupsFile),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminsRaw := strings.TrimSpace(os.Getenv(KeyAdminIDs))
	if adminsRaw == "" {
		missing = append(missing, KeyAdminIDs)
	} else {
		ids, parseErr := ParseAdminIDs(adminsRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminIDs, parseErr)
		}
		cfg.AdminIDs = ids
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	apiIDRaw := strings.TrimSpace(os.Getenv(KeyAPIID))
	if apiIDRaw != "" {
		apiID, parseErr := strconv.Atoi(apiIDRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAPIID, parseErr)
		}
		if cfg.APIHash == "" {
			return Config{}, fmt.Errorf("%s is required when %s is set", KeyAPIHash, KeyAPIID)
		}
		cfg.APIID = apiID
	}

	if cfg.MongoURI != "" {
		if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
			return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			cfg.MongoDB = DefaultMongoDBProd
			if cfg.IsDevelopment() {
				cfg.MongoDB = DefaultMongoDBDev
			}
		}
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// ParseAdminIDs parses a comma or whitespace separated list of Telegram user ids.
// Duplicates are dropped; order of first appearance is kept.
func ParseAdminIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})

	ids := make([]int64, 0, len(fields))
	seen := make(map[int64]struct{}, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", field, err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("user id %d must be positive", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, errors.New("no user ids given")
	}

	return ids, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// MongoEnabled reports whether a MongoDB connection string was configured.
func (c Config) MongoEnabled() bool {
	return c.MongoURI != ""
}

// FormatRedacted renders the configuration with secrets masked, suitable for
// printing with -config-only.
func FormatRedacted(cfg Config) string {
	admins := make([]string, 0, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins = append(admins, strconv.FormatInt(id, 10))
	}

	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"telegram_token: " + redactSecret(cfg.TelegramToken),
		"admin_ids: " + strings.Join(admins, ","),
		"bot_name: " + cfg.BotName,
		"api_id: " + strconv.Itoa(cfg.APIID),
		"api_hash: " + redactSecret(cfg.APIHash),
		"groups_file: " + cfg.GroupsFile,
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
	}

	return strings.Join(lines, "\n")
}

func redactSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactURI(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "...redacted"
	}
	parsed.User = nil

	return parsed.String()
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
