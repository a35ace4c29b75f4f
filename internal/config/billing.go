package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds the tunable billing parameters. It is loaded from
// billing.yml and hot-reloaded on change, so tax rates can be adjusted
// without a restart.
type BillingConfig struct {
	TaxRate               float64 `mapstructure:"taxRate"`
	DueInDays             int     `mapstructure:"dueInDays"`
	GatewayTimeoutSeconds int     `mapstructure:"gatewayTimeoutSeconds"`
	Currency              string  `mapstructure:"currency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TaxRate:               0.10,
		DueInDays:             14,
		GatewayTimeoutSeconds: 15,
		Currency:              "USD",
	}
}

func (c BillingConfig) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewBillingConfigHolderFrom wraps a fixed config, used by tests.
func NewBillingConfigHolderFrom(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/billfold")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLFOLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.taxRate", defaults.TaxRate)
	v.SetDefault("billing.dueInDays", defaults.DueInDays)
	v.SetDefault("billing.gatewayTimeoutSeconds", defaults.GatewayTimeoutSeconds)
	v.SetDefault("billing.currency", defaults.Currency)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return errors.New("billing.taxRate must be in [0, 1)")
	}
	if cfg.DueInDays <= 0 {
		return errors.New("billing.dueInDays must be positive")
	}
	if cfg.GatewayTimeoutSeconds <= 0 {
		return errors.New("billing.gatewayTimeoutSeconds must be positive")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	return nil
}
