package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Payment  PaymentConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type PaymentConfig struct {
	PendingTTL       time.Duration
	WebhookTolerance time.Duration
	CallTimeout      time.Duration

	Mpesa  MpesaConfig
	PayPal PayPalConfig
	Card   CardConfig
}

type MpesaConfig struct {
	ConsumerKey        string
	ConsumerSecret     string
	Shortcode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	CallbackURL        string
	WebhookSecret      string
	Sandbox            bool
}

type PayPalConfig struct {
	ClientID      string
	ClientSecret  string
	ReturnURL     string
	CancelURL     string
	WebhookID     string
	WebhookSecret string
	Sandbox       bool
}

type CardConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 3001)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PAYMENT_PENDING_TTL", "15m")
	viper.SetDefault("WEBHOOK_TOLERANCE", "5m")
	viper.SetDefault("GATEWAY_CALL_TIMEOUT", "30s")
	viper.SetDefault("MPESA_SANDBOX", true)
	viper.SetDefault("PAYPAL_SANDBOX", true)

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Payment: PaymentConfig{
			PendingTTL:       durationOrDefault("PAYMENT_PENDING_TTL", 15*time.Minute),
			WebhookTolerance: durationOrDefault("WEBHOOK_TOLERANCE", 5*time.Minute),
			CallTimeout:      durationOrDefault("GATEWAY_CALL_TIMEOUT", 30*time.Second),
			Mpesa: MpesaConfig{
				ConsumerKey:        viper.GetString("MPESA_CONSUMER_KEY"),
				ConsumerSecret:     viper.GetString("MPESA_CONSUMER_SECRET"),
				Shortcode:          viper.GetString("MPESA_SHORTCODE"),
				Passkey:            viper.GetString("MPESA_PASSKEY"),
				InitiatorName:      viper.GetString("MPESA_INITIATOR_NAME"),
				SecurityCredential: viper.GetString("MPESA_SECURITY_CREDENTIAL"),
				CallbackURL:        viper.GetString("MPESA_CALLBACK_URL"),
				WebhookSecret:      viper.GetString("MPESA_WEBHOOK_SECRET"),
				Sandbox:            viper.GetBool("MPESA_SANDBOX"),
			},
			PayPal: PayPalConfig{
				ClientID:      viper.GetString("PAYPAL_CLIENT_ID"),
				ClientSecret:  viper.GetString("PAYPAL_CLIENT_SECRET"),
				ReturnURL:     viper.GetString("PAYPAL_RETURN_URL"),
				CancelURL:     viper.GetString("PAYPAL_CANCEL_URL"),
				WebhookID:     viper.GetString("PAYPAL_WEBHOOK_ID"),
				WebhookSecret: viper.GetString("PAYPAL_WEBHOOK_SECRET"),
				Sandbox:       viper.GetBool("PAYPAL_SANDBOX"),
			},
			Card: CardConfig{
				SecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
				WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			},
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Payment.Mpesa.ConsumerKey == "" {
		log.Println("WARNING: MPESA_CONSUMER_KEY is not set")
	}

	return cfg, nil
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
