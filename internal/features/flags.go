package features

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"watgbridge/internal/models"
)

// Flag names toggleable at runtime through the operator console.
const (
	FlagStatusSync           = "status_sync"
	FlagCallLogs             = "call_logs"
	FlagProfilePicSync       = "profile_pic_sync"
	FlagReadReceipts         = "read_receipts"
	FlagPresenceUpdates      = "presence_updates"
	FlagAutoUpdateTopicNames = "auto_update_topic_names"
	FlagSendWelcome          = "send_welcome"
	FlagBiDirectional        = "bidirectional"
)

// Flag is a runtime toggle with metadata for the console listing.
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type flagDefinition struct {
	name         string
	description  string
	defaultValue bool
}

var defaultFlags = []flagDefinition{
	{FlagStatusSync, "Relay status broadcasts into the status topic", true},
	{FlagCallLogs, "Relay call events into the call log topic", true},
	{FlagProfilePicSync, "Attach profile pictures to new topics", true},
	{FlagReadReceipts, "Mark WhatsApp messages read after operator replies", true},
	{FlagPresenceUpdates, "Mirror operator typing as WhatsApp presence", true},
	{FlagAutoUpdateTopicNames, "Rename topics when better contact names appear", true},
	{FlagSendWelcome, "Pin a welcome message in newly created topics", true},
	{FlagBiDirectional, "Relay operator replies back to WhatsApp", true},
}

// FlagManager manages runtime feature toggles with thread-safe operations.
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewFlagManager builds a manager seeded with defaults, then applies the
// configured startup state and any environment overrides.
func NewFlagManager(cfg models.FeatureConfig) *FlagManager {
	fm := &FlagManager{flags: make(map[string]*Flag)}

	now := time.Now()
	for _, def := range defaultFlags {
		fm.flags[def.name] = &Flag{
			Name:        def.name,
			Enabled:     def.defaultValue,
			Description: def.description,
			UpdatedAt:   now,
		}
	}

	fm.applyConfig(cfg)
	fm.loadFromEnvironment()
	return fm
}

func (fm *FlagManager) applyConfig(cfg models.FeatureConfig) {
	apply := func(name string, value *bool) {
		if value != nil {
			fm.flags[name].Enabled = *value
		}
	}
	apply(FlagStatusSync, cfg.StatusSync)
	apply(FlagCallLogs, cfg.CallLogs)
	apply(FlagProfilePicSync, cfg.ProfilePicSync)
	apply(FlagReadReceipts, cfg.ReadReceipts)
	apply(FlagPresenceUpdates, cfg.PresenceUpdates)
	apply(FlagAutoUpdateTopicNames, cfg.AutoUpdateTopicNames)
	apply(FlagSendWelcome, cfg.SendWelcome)
	apply(FlagBiDirectional, cfg.BiDirectional)
}

// loadFromEnvironment applies WATGBRIDGE_FEATURE_<NAME>=true/false overrides.
func (fm *FlagManager) loadFromEnvironment() {
	const envPrefix = "WATGBRIDGE_FEATURE_"

	for name, flag := range fm.flags {
		envName := envPrefix + strings.ToUpper(name)
		if envValue := os.Getenv(envName); envValue != "" {
			if enabled, err := strconv.ParseBool(envValue); err == nil {
				flag.Enabled = enabled
				flag.UpdatedAt = time.Now()
			}
		}
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (fm *FlagManager) IsEnabled(flagName string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Toggle flips a flag and returns its new state.
func (fm *FlagManager) Toggle(flagName string) (bool, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return false, ErrFlagNotFound{Name: flagName}
	}

	flag.Enabled = !flag.Enabled
	flag.UpdatedAt = time.Now()
	return flag.Enabled, nil
}

// Set forces a flag to a specific state.
func (fm *FlagManager) Set(flagName string, enabled bool) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return ErrFlagNotFound{Name: flagName}
	}

	flag.Enabled = enabled
	flag.UpdatedAt = time.Now()
	return nil
}

// ListFlags returns copies of all flags sorted by name.
func (fm *FlagManager) ListFlags() []Flag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	result := make([]Flag, 0, len(fm.flags))
	for _, flag := range fm.flags {
		result = append(result, *flag)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature flag not found: " + e.Name
}
