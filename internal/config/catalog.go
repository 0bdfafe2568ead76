package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CatalogConfig is the purchasable catalog as read from catalog.yml.
type CatalogConfig struct {
	Packs   []PackConfig   `mapstructure:"packs"`
	AddOns  []AddOnConfig  `mapstructure:"addons"`
	Upsells []UpsellConfig `mapstructure:"upsells"`
}

type PackConfig struct {
	ID                   string         `mapstructure:"id"`
	Name                 string         `mapstructure:"name"`
	Credits              map[string]int `mapstructure:"credits"`
	Price                int64          `mapstructure:"price"`
	ExpirationDays       int            `mapstructure:"expirationdays"`
	GatewayPriceID       string         `mapstructure:"gatewaypriceid"`
	RequiresSubscription bool           `mapstructure:"requiressubscription"`
	Active               bool           `mapstructure:"active"`
}

type AddOnConfig struct {
	ID             string   `mapstructure:"id"`
	Name           string   `mapstructure:"name"`
	Category       string   `mapstructure:"category"`
	Price          int64    `mapstructure:"price"`
	Effects        []string `mapstructure:"effects"`
	ValidityDays   int      `mapstructure:"validitydays"`
	GatewayPriceID string   `mapstructure:"gatewaypriceid"`
	Active         bool     `mapstructure:"active"`
}

type UpsellConfig struct {
	Flag           string `mapstructure:"flag"`
	Price          int64  `mapstructure:"price"`
	GatewayPriceID string `mapstructure:"gatewaypriceid"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Packs: []PackConfig{
			{ID: "single", Name: "Single Job Post", Credits: map[string]int{"job_post": 1}, Price: 4900, ExpirationDays: 30, Active: true},
			{ID: "starter-5", Name: "Starter 5", Credits: map[string]int{"job_post": 5}, Price: 19900, ExpirationDays: 90, Active: true},
			{ID: "growth-10", Name: "Growth 10", Credits: map[string]int{"job_post": 10, "feature": 3, "social_graphic": 3}, Price: 34900, ExpirationDays: 180, RequiresSubscription: true, Active: true},
			{ID: "feature-3", Name: "Feature 3", Credits: map[string]int{"feature": 3}, Price: 5900, ExpirationDays: 90, Active: true},
		},
		AddOns: []AddOnConfig{
			{ID: "boost", Name: "Boost", Category: "visibility", Price: 1900, Effects: []string{"boost"}, ValidityDays: 30, Active: true},
			{ID: "social-push", Name: "Social Push", Category: "social", Price: 2900, Effects: []string{"social_push"}, ValidityDays: 30, Active: true},
			{ID: "spotlight", Name: "Spotlight", Category: "visibility", Price: 4900, Effects: []string{"boost", "pin"}, ValidityDays: 60, Active: true},
		},
		Upsells: []UpsellConfig{
			{Flag: "social_push", Price: 1500},
			{Flag: "placement_bump", Price: 2500},
		},
	}
}

type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig
}

// NewStaticCatalogHolder returns a holder that never reloads.
func NewStaticCatalogHolder(cfg CatalogConfig) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewCatalogHolder(log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("catalog.config")
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(os.Getenv("HIREBOARD_CONFIG_DIR")); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/hireboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HIREBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("catalog.yml not found, using built-in catalog")
		return NewStaticCatalogHolder(DefaultCatalogConfig()), nil
	}

	cfg, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticCatalogHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("catalog reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

func decodeCatalog(v *viper.Viper) (CatalogConfig, error) {
	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return CatalogConfig{}, err
	}
	if err := ValidateCatalog(cfg); err != nil {
		return CatalogConfig{}, err
	}
	return cfg, nil
}

func ValidateCatalog(cfg CatalogConfig) error {
	if len(cfg.Packs) == 0 {
		return errors.New("catalog.packs cannot be empty")
	}
	seen := map[string]struct{}{}
	for _, pack := range cfg.Packs {
		id := strings.TrimSpace(pack.ID)
		if id == "" {
			return errors.New("catalog.packs: id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("catalog.packs: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		total := 0
		for name, n := range pack.Credits {
			if n < 0 {
				return fmt.Errorf("catalog.packs[%s]: negative credit count", id)
			}
			if !catalogdomain.CreditType(normalizeKey(name)).Valid() {
				return fmt.Errorf("catalog.packs[%s]: unknown credit type %q", id, name)
			}
			total += n
		}
		if total == 0 {
			return fmt.Errorf("catalog.packs[%s]: credits cannot be empty", id)
		}
		if pack.Price <= 0 {
			return fmt.Errorf("catalog.packs[%s]: price must be positive", id)
		}
		if pack.ExpirationDays <= 0 {
			return fmt.Errorf("catalog.packs[%s]: expirationDays must be positive", id)
		}
	}
	for _, addOn := range cfg.AddOns {
		id := strings.TrimSpace(addOn.ID)
		if id == "" {
			return errors.New("catalog.addons: id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("catalog.addons: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if addOn.Price <= 0 {
			return fmt.Errorf("catalog.addons[%s]: price must be positive", id)
		}
		if len(addOn.Effects) == 0 {
			return fmt.Errorf("catalog.addons[%s]: effects cannot be empty", id)
		}
		for _, effect := range addOn.Effects {
			if !catalogdomain.Effect(normalizeKey(effect)).Valid() {
				return fmt.Errorf("catalog.addons[%s]: unknown effect %q", id, effect)
			}
		}
		if addOn.ValidityDays <= 0 {
			return fmt.Errorf("catalog.addons[%s]: validityDays must be positive", id)
		}
	}
	for _, upsell := range cfg.Upsells {
		if strings.TrimSpace(upsell.Flag) == "" {
			return errors.New("catalog.upsells: flag is required")
		}
		if upsell.Price <= 0 {
			return fmt.Errorf("catalog.upsells[%s]: price must be positive", upsell.Flag)
		}
	}
	return nil
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
