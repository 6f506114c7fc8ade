/**
 * @description
 * Configuration management for the relay service. Values come from the environment
 * (optionally a .env file) through Viper, are validated once at startup and are then
 * passed by value to every component.
 *
 * Relay and release are optional subsystems: when their credentials are absent the
 * service still boots and the corresponding routes answer 503.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */
package config

import (
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/escrow"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/tokenclient"
)

// Config holds all configuration for the relay service.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	EventsExchange          string `mapstructure:"EVENTS_EXCHANGE"`
	NearRPCURL              string `mapstructure:"NEAR_RPC_URL"`
	TokenContractID         string `mapstructure:"TOKEN_CONTRACT_ID"`
	AllowedTokenContractIDs string `mapstructure:"ALLOWED_TOKEN_CONTRACTS"`
	EscrowAccountID         string `mapstructure:"ESCROW_ACCOUNT_ID"`
	EscrowPrivateKey        string `mapstructure:"ESCROW_PRIVATE_KEY"`
	PlatformFeeAccountID    string `mapstructure:"PLATFORM_FEE_ACCOUNT_ID"`
	RelayerAccountID        string `mapstructure:"RELAYER_ACCOUNT_ID"`
	RelayerPrivateKey       string `mapstructure:"RELAYER_PRIVATE_KEY"`
	ConsultationStoreURL    string `mapstructure:"CONSULTATION_STORE_URL"`
	ConsultationStoreAPIKey string `mapstructure:"CONSULTATION_STORE_API_KEY"`
	ReleaseTriggerSecret    string `mapstructure:"RELEASE_TRIGGER_SECRET"`
	SpecialistSharePercent  int    `mapstructure:"SPECIALIST_SHARE_PERCENT"`
	StorageDepositYocto     string `mapstructure:"STORAGE_DEPOSIT_YOCTO"`
	AuthJWKSURL             string `mapstructure:"AUTH_JWKS_URL"`
	RelayRateLimitPerMinute int    `mapstructure:"RELAY_RATE_LIMIT_PER_MINUTE"`
	SignerRateLimitPerMin   int    `mapstructure:"RELAY_SIGNER_RATE_LIMIT_PER_MINUTE"`
	ReleaseTimeoutSeconds   int    `mapstructure:"RELEASE_TIMEOUT_SECONDS"`

	// Derived during LoadConfig.
	AllowedTokenContracts []string      `mapstructure:"-"`
	RelayerKey            *near.KeyPair `mapstructure:"-"`
	EscrowKey             *near.KeyPair `mapstructure:"-"`
	StorageDeposit        *big.Int      `mapstructure:"-"`
	RelayEnabled          bool          `mapstructure:"-"`
	ReleaseEnabled        bool          `mapstructure:"-"`
}

// ReleaseTimeout bounds one release run triggered over HTTP.
func (c Config) ReleaseTimeout() time.Duration {
	return time.Duration(c.ReleaseTimeoutSeconds) * time.Second
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "escrow:rate_limit")
	viper.SetDefault("EVENTS_EXCHANGE", "escrow_events")
	viper.SetDefault("SPECIALIST_SHARE_PERCENT", escrow.DefaultSpecialistPercent)
	viper.SetDefault("STORAGE_DEPOSIT_YOCTO", tokenclient.DefaultStorageDepositYocto)
	viper.SetDefault("RELAY_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("RELAY_SIGNER_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("RELEASE_TIMEOUT_SECONDS", 300)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("NEAR_RPC_URL")
	_ = viper.BindEnv("TOKEN_CONTRACT_ID")
	_ = viper.BindEnv("ALLOWED_TOKEN_CONTRACTS")
	_ = viper.BindEnv("ESCROW_ACCOUNT_ID")
	_ = viper.BindEnv("ESCROW_PRIVATE_KEY")
	_ = viper.BindEnv("PLATFORM_FEE_ACCOUNT_ID")
	_ = viper.BindEnv("RELAYER_ACCOUNT_ID")
	_ = viper.BindEnv("RELAYER_PRIVATE_KEY")
	_ = viper.BindEnv("CONSULTATION_STORE_URL")
	_ = viper.BindEnv("CONSULTATION_STORE_API_KEY")
	_ = viper.BindEnv("RELEASE_TRIGGER_SECRET", "RELEASE_TRIGGER_SECRET", "CRON_SECRET")
	_ = viper.BindEnv("SPECIALIST_SHARE_PERCENT")
	_ = viper.BindEnv("STORAGE_DEPOSIT_YOCTO")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("RELAY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RELAY_SIGNER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RELEASE_TIMEOUT_SECONDS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	err = config.finalize()
	return
}

func (c *Config) finalize() error {
	for _, field := range []*string{
		&c.NearRPCURL, &c.TokenContractID, &c.AllowedTokenContractIDs, &c.EscrowAccountID,
		&c.EscrowPrivateKey, &c.PlatformFeeAccountID, &c.RelayerAccountID, &c.RelayerPrivateKey,
		&c.ConsultationStoreURL, &c.ConsultationStoreAPIKey, &c.ReleaseTriggerSecret,
		&c.RedisURL, &c.RedisRateLimitPrefix, &c.RabbitMQURL, &c.EventsExchange, &c.AuthJWKSURL,
	} {
		*field = strings.TrimSpace(*field)
	}

	var missing []string
	if c.NearRPCURL == "" {
		missing = append(missing, "NEAR_RPC_URL")
	}
	if c.TokenContractID == "" {
		missing = append(missing, "TOKEN_CONTRACT_ID")
	}
	if c.EscrowAccountID == "" {
		missing = append(missing, "ESCROW_ACCOUNT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if err := validateAccount("TOKEN_CONTRACT_ID", c.TokenContractID); err != nil {
		return err
	}
	if err := validateAccount("ESCROW_ACCOUNT_ID", c.EscrowAccountID); err != nil {
		return err
	}
	if c.PlatformFeeAccountID != "" {
		if err := validateAccount("PLATFORM_FEE_ACCOUNT_ID", c.PlatformFeeAccountID); err != nil {
			return err
		}
	}

	c.AllowedTokenContracts = nil
	for _, id := range strings.Split(c.AllowedTokenContractIDs, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := validateAccount("ALLOWED_TOKEN_CONTRACTS", id); err != nil {
			return err
		}
		c.AllowedTokenContracts = append(c.AllowedTokenContracts, id)
	}
	if len(c.AllowedTokenContracts) == 0 {
		c.AllowedTokenContracts = []string{c.TokenContractID}
	}

	if c.SpecialistSharePercent < 0 || c.SpecialistSharePercent > 100 {
		return fmt.Errorf("SPECIALIST_SHARE_PERCENT must be between 0 and 100, got %d", c.SpecialistSharePercent)
	}

	deposit, err := tokenclient.ParseAmount(c.StorageDepositYocto)
	if err != nil || deposit.Sign() == 0 {
		return fmt.Errorf("STORAGE_DEPOSIT_YOCTO must be a positive integer, got %q", c.StorageDepositYocto)
	}
	c.StorageDeposit = deposit

	if (c.RelayerAccountID == "") != (c.RelayerPrivateKey == "") {
		return errors.New("RELAYER_ACCOUNT_ID and RELAYER_PRIVATE_KEY must be set together")
	}
	if c.RelayerAccountID != "" {
		if err := validateAccount("RELAYER_ACCOUNT_ID", c.RelayerAccountID); err != nil {
			return err
		}
		if c.RelayerKey, err = near.ParseKeyPair(c.RelayerPrivateKey); err != nil {
			return fmt.Errorf("RELAYER_PRIVATE_KEY: %w", err)
		}
	}
	if c.EscrowPrivateKey != "" {
		if c.EscrowKey, err = near.ParseKeyPair(c.EscrowPrivateKey); err != nil {
			return fmt.Errorf("ESCROW_PRIVATE_KEY: %w", err)
		}
	}

	if c.RedisRateLimitPrefix == "" {
		c.RedisRateLimitPrefix = "escrow:rate_limit"
	}
	if c.EventsExchange == "" {
		c.EventsExchange = "escrow_events"
	}
	if c.ReleaseTimeoutSeconds <= 0 {
		c.ReleaseTimeoutSeconds = 300
	}

	c.RelayEnabled = c.RelayerKey != nil
	c.ReleaseEnabled = c.RelayEnabled &&
		c.EscrowKey != nil &&
		c.PlatformFeeAccountID != "" &&
		c.ConsultationStoreURL != "" &&
		c.ReleaseTriggerSecret != ""

	if !c.RelayEnabled {
		log.Println("level=warn component=config msg=\"relayer not configured; relay routes will answer 503\"")
	}
	if !c.ReleaseEnabled {
		log.Printf("level=warn component=config msg=\"escrow release disabled\" relayer_set=%t escrow_key_set=%t platform_account_set=%t store_url_set=%t secret_set=%t",
			c.RelayEnabled, c.EscrowKey != nil, c.PlatformFeeAccountID != "", c.ConsultationStoreURL != "", c.ReleaseTriggerSecret != "")
	}
	return nil
}

func validateAccount(key, id string) error {
	if err := near.ValidateAccountID(id); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
