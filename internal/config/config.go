/**
 * @description
 * This package handles configuration management for the engagement-service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), and carries the static service catalog that
 * orders are priced against.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration management.
 */

package config

import (
	"log"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engagement-service, loaded from
// environment variables.
type Config struct {
	BotToken               string `mapstructure:"BOT_TOKEN"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	ServerPort             string `mapstructure:"SERVER_PORT"`
	BaseURL                string `mapstructure:"BASE_URL"`
	SupplierAPIBase        string `mapstructure:"SUPPLIER_API_BASE"`
	SupplierAPIKey         string `mapstructure:"SUPPLIER_API_KEY"`
	AdminIDsRaw            string `mapstructure:"ADMIN_IDS"`
	ForceJoinChannelsRaw   string `mapstructure:"FORCE_JOIN_CHANNELS"`
	ReferralBonusPoints    int64  `mapstructure:"REFERRAL_BONUS_POINTS"`
	OrderSweepIntervalMin  int    `mapstructure:"ORDER_SWEEP_INTERVAL_MINUTES"`
	VerifyRateLimitPerWin  int    `mapstructure:"VERIFY_RATE_LIMIT_PER_WINDOW"`
	VerifyRateLimitWinMin  int    `mapstructure:"VERIFY_RATE_LIMIT_WINDOW_MINUTES"`
	CommandThrottleSeconds int    `mapstructure:"COMMAND_THROTTLE_SECONDS"`

	// Derived fields, populated after Unmarshal.
	AdminIDs          []int64
	ForceJoinChannels []string
}

// LoadConfig reads configuration from environment variables from the given
// path. An absent .env file is not an error.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("SUPPLIER_API_BASE", "https://exosupplier.com/api/v2")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "engage:rate_limit")
	viper.SetDefault("REFERRAL_BONUS_POINTS", 20)
	viper.SetDefault("ORDER_SWEEP_INTERVAL_MINUTES", 10)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_WINDOW", 300)
	viper.SetDefault("VERIFY_RATE_LIMIT_WINDOW_MINUTES", 15)
	viper.SetDefault("COMMAND_THROTTLE_SECONDS", 1)

	_ = viper.BindEnv("BOT_TOKEN")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("BASE_URL")
	_ = viper.BindEnv("SUPPLIER_API_BASE")
	_ = viper.BindEnv("SUPPLIER_API_KEY")
	_ = viper.BindEnv("ADMIN_IDS")
	_ = viper.BindEnv("FORCE_JOIN_CHANNELS")
	_ = viper.BindEnv("REFERRAL_BONUS_POINTS")
	_ = viper.BindEnv("ORDER_SWEEP_INTERVAL_MINUTES")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_WINDOW")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_WINDOW_MINUTES")
	_ = viper.BindEnv("COMMAND_THROTTLE_SECONDS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "http://localhost:" + config.ServerPort
	}
	config.AdminIDs = parseAdminIDs(config.AdminIDsRaw)
	config.ForceJoinChannels = parseList(config.ForceJoinChannelsRaw)

	if config.ReferralBonusPoints < 0 {
		log.Printf("level=warn component=config msg=\"negative referral bonus configured; coercing to zero\" bonus=%d", config.ReferralBonusPoints)
		config.ReferralBonusPoints = 0
	}
	if config.VerifyRateLimitWinMin <= 0 {
		config.VerifyRateLimitWinMin = 15
	}
	if config.CommandThrottleSeconds < 0 {
		config.CommandThrottleSeconds = 0
	}

	return
}

// IsAdmin reports whether the given Telegram id is on the administrator
// allow-list.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range parseList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("level=warn component=config msg=\"skipping invalid admin id\" value=%q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
