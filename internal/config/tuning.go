package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SyncTuning holds the knobs of the notification pipeline that operators may
// adjust without a restart.
type SyncTuning struct {
	LiveWindow         time.Duration `mapstructure:"liveWindow"`
	SimilarityWindow   time.Duration `mapstructure:"similarityWindow"`
	SignaturePrefixLen int           `mapstructure:"signaturePrefixLen"`
	DisplayBucket      time.Duration `mapstructure:"displayBucket"`
	ListLimit          int           `mapstructure:"listLimit"`
	DeadlineOffsets    []int         `mapstructure:"deadlineOffsets"`
	Timezone           string        `mapstructure:"timezone"`
}

func DefaultSyncTuning() SyncTuning {
	return SyncTuning{
		LiveWindow:         5 * time.Second,
		SimilarityWindow:   3 * time.Second,
		SignaturePrefixLen: 10,
		DisplayBucket:      time.Minute,
		ListLimit:          50,
		DeadlineOffsets:    []int{3, 1},
		Timezone:           "Europe/Paris",
	}
}

// Location resolves Timezone, falling back to UTC.
func (t SyncTuning) Location() *time.Location {
	name := strings.TrimSpace(t.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SyncTuningHolder struct {
	current atomic.Value // holds SyncTuning
}

// NewStaticSyncTuning returns a holder that never reloads.
func NewStaticSyncTuning(t SyncTuning) *SyncTuningHolder {
	holder := &SyncTuningHolder{}
	holder.current.Store(t)
	return holder
}

func NewSyncTuningHolder(log *zap.Logger) (*SyncTuningHolder, error) {
	log = log.Named("config.tuning")
	v := viper.New()

	v.SetConfigName("portalsync")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/portalsync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PORTALSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncTuning()
	v.SetDefault("sync.liveWindow", defaults.LiveWindow)
	v.SetDefault("sync.similarityWindow", defaults.SimilarityWindow)
	v.SetDefault("sync.signaturePrefixLen", defaults.SignaturePrefixLen)
	v.SetDefault("sync.displayBucket", defaults.DisplayBucket)
	v.SetDefault("sync.listLimit", defaults.ListLimit)
	v.SetDefault("sync.deadlineOffsets", defaults.DeadlineOffsets)
	v.SetDefault("sync.timezone", defaults.Timezone)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg SyncTuning
	if err := v.UnmarshalKey("sync", &cfg); err != nil {
		return nil, err
	}
	if err := validateSyncTuning(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSyncTuning(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SyncTuning
		if err := v.UnmarshalKey("sync", &updated); err != nil {
			log.Warn("reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateSyncTuning(updated); err != nil {
			log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SyncTuningHolder) Get() SyncTuning {
	if h == nil {
		return DefaultSyncTuning()
	}
	return h.current.Load().(SyncTuning)
}

func validateSyncTuning(cfg SyncTuning) error {
	if cfg.LiveWindow <= 0 {
		return errors.New("sync.liveWindow must be positive")
	}
	if cfg.SimilarityWindow <= 0 {
		return errors.New("sync.similarityWindow must be positive")
	}
	if cfg.SignaturePrefixLen <= 0 {
		return errors.New("sync.signaturePrefixLen must be positive")
	}
	if cfg.ListLimit <= 0 {
		return errors.New("sync.listLimit must be positive")
	}
	if len(cfg.DeadlineOffsets) == 0 {
		return errors.New("sync.deadlineOffsets cannot be empty")
	}
	return nil
}
