package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LeadMagnetConfig is the free-quota configuration snapshot. Services take a
// snapshot per call so a mid-operation reload cannot mix versions.
type LeadMagnetConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	CycleDays     int              `mapstructure:"cycleDays"`
	ConfigVersion int              `mapstructure:"configVersion"`
	Quotas        map[string]int64 `mapstructure:"quotas"`
}

// Quota resources understood by the evaluator. Unknown keys in the config
// file are dropped at load time.
const (
	QuotaTokensInput  = "tokens_input"
	QuotaTokensOutput = "tokens_output"
	QuotaImages       = "images"
	QuotaTTSSeconds   = "tts_seconds"
	QuotaSTTSeconds   = "stt_seconds"
)

var quotaKeys = []string{
	QuotaTokensInput,
	QuotaTokensOutput,
	QuotaImages,
	QuotaTTSSeconds,
	QuotaSTTSeconds,
}

func DefaultLeadMagnetConfig() LeadMagnetConfig {
	return LeadMagnetConfig{
		Enabled:       false,
		CycleDays:     30,
		ConfigVersion: 1,
		Quotas:        NormalizeQuotas(nil),
	}
}

// NormalizeQuotas fills missing resources with zero and drops unknown keys.
func NormalizeQuotas(raw map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(quotaKeys))
	for _, key := range quotaKeys {
		out[key] = 0
	}
	for key, value := range raw {
		if _, ok := out[key]; ok && value > 0 {
			out[key] = value
		}
	}
	return out
}

// LeadMagnetConfigHolder serves the current config and hot-reloads it from
// a watched file.
type LeadMagnetConfigHolder struct {
	current atomic.Value // holds LeadMagnetConfig
}

func NewLeadMagnetConfigHolder() (*LeadMagnetConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("leadmagnet")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kassa/config") // Volume-mounted config
	v.AddConfigPath("/etc/kassa")            // System config
	v.AddConfigPath(".")                     // Current directory (dev mode)

	v.SetEnvPrefix("KASSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &LeadMagnetConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultLeadMagnetConfig())
		return holder, nil
	}

	cfg, err := unmarshalLeadMagnetConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalLeadMagnetConfig(v)
		if err != nil {
			log.Printf("[leadmagnet-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[leadmagnet-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the current snapshot.
func (h *LeadMagnetConfigHolder) Get() LeadMagnetConfig {
	return h.current.Load().(LeadMagnetConfig)
}

// Set replaces the snapshot. Used by tests and admin tooling.
func (h *LeadMagnetConfigHolder) Set(cfg LeadMagnetConfig) {
	cfg.Quotas = NormalizeQuotas(cfg.Quotas)
	if cfg.CycleDays < 1 {
		cfg.CycleDays = 1
	}
	h.current.Store(cfg)
}

// NewStaticLeadMagnetHolder builds a holder seeded with cfg, bypassing file
// discovery. Used by tests.
func NewStaticLeadMagnetHolder(cfg LeadMagnetConfig) *LeadMagnetConfigHolder {
	holder := &LeadMagnetConfigHolder{}
	holder.Set(cfg)
	return holder
}

func unmarshalLeadMagnetConfig(v *viper.Viper) (LeadMagnetConfig, error) {
	var cfg LeadMagnetConfig
	if err := v.UnmarshalKey("leadMagnet", &cfg); err != nil {
		return LeadMagnetConfig{}, err
	}
	if err := validateLeadMagnetConfig(cfg); err != nil {
		return LeadMagnetConfig{}, err
	}
	cfg.Quotas = NormalizeQuotas(cfg.Quotas)
	return cfg, nil
}

func validateLeadMagnetConfig(cfg LeadMagnetConfig) error {
	if cfg.CycleDays < 1 {
		return errors.New("leadMagnet.cycleDays must be >= 1")
	}
	if cfg.ConfigVersion < 1 {
		return errors.New("leadMagnet.configVersion must be >= 1")
	}
	return nil
}
