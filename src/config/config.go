package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	JWTSecret          string
	Port               string
	DatabasePath       string
	LogLevel           string
	CSRFAuthKey        []byte
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MaxUploadSizeBytes int64

	// Capital gains tax parameters. Defaults follow the Irish CGT regime:
	// 33% flat rate, EUR 1270 annual exemption, fiscal year starting April 6.
	TaxRate              decimal.Decimal
	AnnualExemption      decimal.Decimal
	FiscalYearStartMonth time.Month
	FiscalYearStartDay   int

	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceBaseURL   string
	BinanceSymbols   []string

	// Fallback rate used when a source reports prices in USDT only.
	USDTToEURRate decimal.Decimal

	EmailServiceProvider string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail string
	SenderName  string

	VerificationEmailBaseURL string
	VerificationTokenExpiry  time.Duration

	PasswordResetBaseURL     string
	PasswordResetTokenExpiry time.Duration
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes")
	if jwtSecret == "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	csrfAuthKeyStr := getEnv("CSRF_AUTH_KEY", "a-very-secure-32-byte-long-key-must-be-32-bytes!")
	if csrfAuthKeyStr == "a-very-secure-32-byte-long-key-must-be-32-bytes!" {
		log.Println("WARNING: Using default insecure CSRF_AUTH_KEY. Set CSRF_AUTH_KEY environment variable for production.")
	}
	if len(csrfAuthKeyStr) < 32 {
		log.Fatalf("FATAL: CSRF_AUTH_KEY must be at least 32 bytes long. Current length: %d", len(csrfAuthKeyStr))
	}

	accessTokenExpiry := getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute)
	refreshTokenExpiry := getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
	verificationTokenExpiry := getEnvAsDuration("VERIFICATION_TOKEN_EXPIRY", 24*time.Hour)
	passwordResetTokenExpiry := getEnvAsDuration("PASSWORD_RESET_TOKEN_EXPIRY", 1*time.Hour)

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	taxRate := getEnvAsDecimal("CGT_TAX_RATE", "0.33")
	if taxRate.IsNegative() {
		log.Fatalf("FATAL: CGT_TAX_RATE must not be negative, got %s", taxRate)
	}
	annualExemption := getEnvAsDecimal("CGT_ANNUAL_EXEMPTION", "1270")
	if annualExemption.IsNegative() {
		log.Fatalf("FATAL: CGT_ANNUAL_EXEMPTION must not be negative, got %s", annualExemption)
	}

	fiscalStartMonth := getEnvAsInt("FISCAL_YEAR_START_MONTH", 4)
	if fiscalStartMonth < 1 || fiscalStartMonth > 12 {
		log.Fatalf("FATAL: FISCAL_YEAR_START_MONTH must be 1-12, got %d", fiscalStartMonth)
	}
	fiscalStartDay := getEnvAsInt("FISCAL_YEAR_START_DAY", 6)
	if fiscalStartDay < 1 || fiscalStartDay > 31 {
		log.Fatalf("FATAL: FISCAL_YEAR_START_DAY must be 1-31, got %d", fiscalStartDay)
	}

	Cfg = &AppConfig{
		JWTSecret:          jwtSecret,
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./cryptocgt.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CSRFAuthKey:        []byte(csrfAuthKeyStr),
		AccessTokenExpiry:  accessTokenExpiry,
		RefreshTokenExpiry: refreshTokenExpiry,
		MaxUploadSizeBytes: maxUploadSizeBytes,

		TaxRate:              taxRate,
		AnnualExemption:      annualExemption,
		FiscalYearStartMonth: time.Month(fiscalStartMonth),
		FiscalYearStartDay:   fiscalStartDay,

		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: getEnv("BINANCE_API_SECRET", ""),
		BinanceBaseURL:   getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		BinanceSymbols:   getEnvAsList("BINANCE_SYMBOLS", "BTCEUR,ETHEUR,BTCUSDT,ETHUSDT"),

		USDTToEURRate: getEnvAsDecimal("USDT_TO_EUR_RATE", "0.85"),

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", "mock"),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail: getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:  getEnv("SENDER_NAME", "CryptoCGT App"),

		VerificationEmailBaseURL: getEnv("VERIFICATION_EMAIL_BASE_URL", "http://localhost:3000/verify-email"),
		VerificationTokenExpiry:  verificationTokenExpiry,

		PasswordResetBaseURL:     getEnv("PASSWORD_RESET_BASE_URL", "http://localhost:3000/reset-password"),
		PasswordResetTokenExpiry: passwordResetTokenExpiry,
	}

	if Cfg.EmailServiceProvider == "mailgun" {
		if Cfg.MailgunDomain == "" {
			log.Fatalf("FATAL: MAILGUN_DOMAIN is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
		if Cfg.MailgunPrivateAPIKey == "" {
			log.Fatalf("FATAL: MAILGUN_PRIVATE_API_KEY is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
		if Cfg.SenderEmail == "noreply@example.com" || Cfg.SenderEmail == "" {
			log.Fatalf("FATAL: SENDER_EMAIL must be configured properly (e.g., your Mailgun sender) when EMAIL_SERVICE_PROVIDER is 'mailgun'.")
		}
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, TaxRate=%s, Exemption=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.TaxRate, Cfg.AnnualExemption)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	valueStr := getEnv(key, fallback)
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvAsDecimal(key, fallback string) decimal.Decimal {
	valueStr := getEnv(key, fallback)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Printf("Invalid decimal value for %s ('%s'), using default: %s", key, valueStr, fallback)
		value, _ = decimal.NewFromString(fallback)
	}
	return value
}
