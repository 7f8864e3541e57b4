package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Getnet            GetnetConfig
	Facturante        FacturanteConfig
	Webhook           WebhookConfig
	FX                FXConfig
	RateLimit         RateLimitConfig
	Redis             RedisConfig
	Reconciliation    ReconciliationConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName      string
	Environment      string
	MigrateOnStartup bool
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type GetnetConfig struct {
	Environment       string
	OAuthURL          string
	APIURL            string
	ClientID          string
	ClientSecret      string
	SellerID          string
	HTTPTimeout       time.Duration
	TokenExpiryMargin time.Duration
}

type FacturanteConfig struct {
	BaseURL                string
	Company                string
	User                   string
	Hash                   string
	DefaultDocumentType    string
	DefaultPointOfSale     string
	CreditNoteDocumentType string
	HTTPTimeout            time.Duration
}

type WebhookConfig struct {
	SignatureHeader    string
	TenantSecretHeader string
	Secret             string
	AllowUnsigned      bool
	MaxBodyBytes       int64
}

// FXConfig holds the conversion rates into the settlement currency and the
// minor-unit heuristic applied before conversion.
type FXConfig struct {
	SettlementCurrency  string
	Rates               map[string]string
	MinorUnitCurrencies []string
	MinorUnitThreshold  int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ReconciliationConfig struct {
	DaysToCheck int
	DeepDays    int
	Timeout     time.Duration
}

type JobsConfig struct {
	ReconcileInterval     time.Duration
	DeepReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	getnetEnv := strings.ToLower(getEnv("GETNET_ENVIRONMENT", "sandbox"))
	defaultOAuthURL, defaultAPIURL := getnetEndpoints(getnetEnv)

	requestsPerMinute := getIntEnv("RATE_LIMIT_REQUESTS_PER_MINUTE", 60)

	return &Config{
		App: AppConfig{
			ServiceName:      getEnv("APP_SERVICE_NAME", "billing-connector"),
			Environment:      getEnv("APP_ENV", "development"),
			MigrateOnStartup: getBoolEnv("APP_MIGRATE_ON_STARTUP", false),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Getnet: GetnetConfig{
			Environment:       getnetEnv,
			OAuthURL:          getEnv("GETNET_OAUTH_URL", defaultOAuthURL),
			APIURL:            getEnv("GETNET_API_URL", defaultAPIURL),
			ClientID:          getEnv("GETNET_CLIENT_ID", ""),
			ClientSecret:      getEnv("GETNET_CLIENT_SECRET", ""),
			SellerID:          getEnv("GETNET_SELLER_ID", ""),
			HTTPTimeout:       getSecondsEnv("GETNET_HTTP_TIMEOUT_SECONDS", 15*time.Second),
			TokenExpiryMargin: getSecondsEnv("GETNET_TOKEN_EXPIRY_MARGIN_SECONDS", 60*time.Second),
		},
		Facturante: FacturanteConfig{
			BaseURL:                getEnv("FACTURANTE_BASE_URL", ""),
			Company:                getEnv("FACTURANTE_COMPANY", ""),
			User:                   getEnv("FACTURANTE_USER", ""),
			Hash:                   getEnv("FACTURANTE_HASH", ""),
			DefaultDocumentType:    getEnv("FACTURANTE_DEFAULT_DOCUMENT_TYPE", "FB"),
			DefaultPointOfSale:     getEnv("FACTURANTE_DEFAULT_POINT_OF_SALE", "0001"),
			CreditNoteDocumentType: getEnv("FACTURANTE_CREDIT_NOTE_DOCUMENT_TYPE", "NC"),
			HTTPTimeout:            getSecondsEnv("FACTURANTE_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Webhook: WebhookConfig{
			SignatureHeader:    getEnv("WEBHOOK_SIGNATURE_HEADER", "X-Getnet-Signature"),
			TenantSecretHeader: getEnv("WEBHOOK_TENANT_SECRET_HEADER", "X-Tenant-Secret"),
			Secret:             getEnv("GETNET_WEBHOOK_SECRET", ""),
			AllowUnsigned:      getBoolEnv("GETNET_WEBHOOK_ALLOW_UNSIGNED", false),
			MaxBodyBytes:       int64(getIntEnv("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		},
		FX: FXConfig{
			SettlementCurrency:  strings.ToUpper(getEnv("SETTLEMENT_CURRENCY", "ARS")),
			Rates:               parseRates(getEnv("FX_RATES", "BRL:150")),
			MinorUnitCurrencies: parseList(getEnv("MINOR_UNIT_CURRENCIES", "BRL")),
			MinorUnitThreshold:  getIntEnv("MINOR_UNIT_THRESHOLD", 1000),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolEnv("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: requestsPerMinute,
			Burst:             getIntEnv("RATE_LIMIT_BURST", requestsPerMinute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Reconciliation: ReconciliationConfig{
			DaysToCheck: getIntEnv("RECONCILIATION_DAYS_TO_CHECK", 7),
			DeepDays:    getIntEnv("RECONCILIATION_DEEP_DAYS", 30),
			Timeout:     getMinutesEnv("RECONCILIATION_TIMEOUT_MINUTES", 30*time.Minute),
		},
		Jobs: JobsConfig{
			ReconcileInterval:     getMinutesEnv("RECONCILE_INTERVAL_MINUTES", 24*time.Hour),
			DeepReconcileInterval: getMinutesEnv("DEEP_RECONCILE_INTERVAL_MINUTES", 7*24*time.Hour),
		},
	}, nil
}

func getnetEndpoints(environment string) (string, string) {
	switch environment {
	case "production":
		return "https://api.globalgetnet.com/authentication/oauth2/access_token", "https://api.globalgetnet.com"
	case "homologacao", "pre":
		return "https://api-homologacao.getnet.com.br/auth/oauth/v2/token", "https://api-homologacao.getnet.com.br"
	default:
		return "https://api-sbx.globalgetnet.com/authentication/oauth2/access_token", "https://api-sbx.globalgetnet.com"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// parseRates reads "CUR:rate,CUR:rate". Rates stay as strings so callers can
// parse them with full decimal precision.
func parseRates(raw string) map[string]string {
	rates := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		code, rate, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		rate = strings.TrimSpace(rate)
		if code == "" || rate == "" {
			continue
		}
		rates[code] = rate
	}
	return rates
}

func parseList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
