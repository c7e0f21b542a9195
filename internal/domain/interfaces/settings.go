package interfaces

import "context"

// Runtime setting keys. Values are read fresh on every decision point
// so operators can flip them without a restart.
const (
	SettingAssignmentMode     = "assignment_mode"
	SettingMaxDealsPerManager = "max_deals_per_manager"
	SettingAIMode             = "ai_mode"
)

// Defaults substituted when a key is absent. A missing setting is never
// fatal.
const (
	DefaultAssignmentMode     = "free_pool"
	DefaultMaxDealsPerManager = 15
	DefaultAIMode             = "copilot"
)

// Assignment modes and AI modes.
const (
	AssignmentModeFreePool = "free_pool"
	AssignmentModeAuto     = "auto"

	AIModeCopilot   = "copilot"
	AIModeAutopilot = "autopilot"
)

// SettingsStore is a key to JSON-value lookup. Implementations return
// the fallback on missing keys or read errors.
type SettingsStore interface {
	GetString(ctx context.Context, key, fallback string) string
	GetInt(ctx context.Context, key string, fallback int) int
	Put(ctx context.Context, key string, value any) error
}
