package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// KeyBindingsConfig holds modifier customization and optional per-action overrides
type KeyBindingsConfig struct {
	Modifiers ModifierConfig    `toml:"modifiers"`
	Actions   map[string]string `toml:"actions"` // Optional overrides for specific actions
}

type ModifierConfig struct {
	Primary   string `toml:"primary"`   // e.g., "alt", "ctrl", "meta", "super"
	Secondary string `toml:"secondary"` // e.g., "alt+shift", "ctrl+shift"
}

// actionDef defines the default modifier and key for an action
type actionDef struct {
	modifier string // "primary", "secondary", or "none"
	key      string // "j", "k", "enter", etc.
}

// actionRegistry maps action names to their default keybindings
// Users can override any of these in the [actions] section of keybindings.toml
var actionRegistry = map[string]actionDef{
	// Main view - Modal toggles
	"help":            {"primary", "h"},
	"new_session":     {"primary", "n"},
	"session_list":    {"primary", "s"},
	"status":          {"secondary", "s"},
	"search_sessions": {"primary", "f"},

	// Main view - Tool toggles
	"toggle_tools":        {"primary", "t"},
	"toggle_auto_execute": {"secondary", "t"},

	// Main view - Scrolling
	"scroll_down":      {"primary", "j"},
	"scroll_up":        {"primary", "k"},
	"half_page_down":   {"secondary", "j"},
	"half_page_up":     {"secondary", "k"},
	"page_down":        {"primary", "pgdown"},
	"page_up":          {"primary", "pgup"},
	"scroll_to_top":    {"primary", "g"},
	"scroll_to_bottom": {"secondary", "g"},

	// Main view - Actions
	"quit":               {"primary", "q"},
	"yank_last_response": {"primary", "y"},
	"yank_conversation":  {"primary", "c"},
	"clear_input":        {"primary", "u"},

	// Tool confirmation prompt (no modifier needed)
	"confirm_tools": {"none", "y"},
	"decline_tools": {"none", "n"},

	// Session list modal (no modifier needed)
	"session_down":   {"none", "j"},
	"session_up":     {"none", "k"},
	"session_delete": {"none", "d"},
}

// DefaultKeybindings returns default configuration
func DefaultKeybindings() *KeyBindingsConfig {
	return &KeyBindingsConfig{
		Modifiers: ModifierConfig{
			Primary:   "alt",
			Secondary: "alt+shift",
		},
	}
}

// LoadKeybindings loads keybindings from data directory
func LoadKeybindings(dataDir string) (*KeyBindingsConfig, error) {
	cfg := DefaultKeybindings()
	keybindingsPath := filepath.Join(dataDir, "keybindings.toml")

	if !FileExists(keybindingsPath) {
		if err := CreateDefaultKeybindings(dataDir); err != nil {
			return nil, fmt.Errorf("failed to create keybindings: %w", err)
		}
		return cfg, nil
	}

	_, err := toml.DecodeFile(keybindingsPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse keybindings: %w", err)
	}

	// Validate and apply defaults if missing
	if cfg.Modifiers.Primary == "" {
		cfg.Modifiers.Primary = "alt"
	}
	if cfg.Modifiers.Secondary == "" {
		cfg.Modifiers.Secondary = "alt+shift"
	}

	return cfg, nil
}

// CreateDefaultKeybindings creates default keybindings.toml
func CreateDefaultKeybindings(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	keybindingsPath := filepath.Join(dataDir, "keybindings.toml")
	if FileExists(keybindingsPath) {
		return nil
	}

	content := GenerateKeybindingsTemplate()
	if err := os.WriteFile(keybindingsPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write keybindings: %w", err)
	}

	return nil
}

// GenerateKeybindingsTemplate returns the default TOML template
func GenerateKeybindingsTemplate() string {
	return `# toolchat Keybindings Configuration
# Location: <data_dir>/keybindings.toml
# This file uses TOML format: https://toml.io

# ==============================================================================
# MODIFIER KEYS (Simple Configuration)
# ==============================================================================
# Change these to avoid conflicts with your window manager/terminal multiplexor
# Most users only need to customize these two settings

[modifiers]
primary = "alt"          # Default: alt (Options: alt, ctrl, meta, super)
secondary = "alt+shift"  # Default: alt+shift

# Examples of alternative modifier configurations:
#
# For tmux users (Alt may conflict):
#   primary = "ctrl"
#   secondary = "ctrl+shift"
#
# For i3/sway users (Alt is window manager key):
#   primary = "super"
#   secondary = "super+shift"
#
# Mixed modifiers for power users:
#   primary = "alt"
#   secondary = "ctrl+shift"

# ==============================================================================
# PER-ACTION OVERRIDES (Advanced Configuration)
# ==============================================================================
# Optionally override specific actions for fine-grained control
# Uncomment and customize any actions you want to change

[actions]
# Examples (uncomment to use):
#
# Vim-style navigation with Ctrl:
#   scroll_down = "ctrl+j"
#   scroll_up = "ctrl+k"
#
# Emacs-style shortcuts:
#   scroll_down = "ctrl+n"
#   scroll_up = "ctrl+p"
#
# Custom session management:
#   new_session = "ctrl+t"
#   session_list = "ctrl+shift+s"
#
# Tool toggles:
#   toggle_tools = "alt+T"
#   toggle_auto_execute = "ctrl+e"
#
# Remap quit to avoid accidental exits:
#   quit = "ctrl+shift+q"

# Actions: help, new_session, session_list, status, search_sessions,
# toggle_tools, toggle_auto_execute, scroll_down, scroll_up, half_page_down,
# half_page_up, page_down, page_up, scroll_to_top, scroll_to_bottom, quit,
# yank_last_response, yank_conversation, clear_input, confirm_tools,
# decline_tools, session_down, session_up, session_delete
`
}

// Primary is the modifier for most actions. Defaults to alt.
func (kb *KeyBindingsConfig) Primary() string {
	if kb.Modifiers.Primary == "" {
		return "alt"
	}
	return kb.Modifiers.Primary
}

// Secondary defaults to alt+shift.
func (kb *KeyBindingsConfig) Secondary() string {
	if kb.Modifiers.Secondary == "" {
		return "alt+shift"
	}
	return kb.Modifiers.Secondary
}

func (kb *KeyBindingsConfig) PrimaryKey(key string) string {
	return kb.Primary() + "+" + key
}

// SecondaryKey joins the secondary modifier and key the way bubbletea
// reports them: a shifted letter arrives as its uppercase rune, so
// ("alt+shift", "s") becomes "alt+S". Other keys keep an explicit shift.
func (kb *KeyBindingsConfig) SecondaryKey(key string) string {
	secondary := kb.Secondary()
	if len(key) != 1 || key[0] < 'a' || key[0] > 'z' {
		return secondary + "+" + key
	}

	var mods []string
	shifted := false
	for _, part := range strings.Split(secondary, "+") {
		if strings.EqualFold(part, "shift") {
			shifted = true
			continue
		}
		mods = append(mods, part)
	}
	if !shifted {
		return secondary + "+" + key
	}

	mods = append(mods, strings.ToUpper(key))
	return strings.Join(mods, "+")
}

// GetActionKey returns the key string for action as msg.String() would
// report it. User overrides win over the registry; unknown actions give "".
func (kb *KeyBindingsConfig) GetActionKey(action string) string {
	if override := kb.Actions[action]; override != "" {
		return override
	}

	def, ok := actionRegistry[action]
	if !ok {
		return ""
	}
	switch def.modifier {
	case "primary":
		return kb.PrimaryKey(def.key)
	case "secondary":
		return kb.SecondaryKey(def.key)
	}
	return def.key
}

// DisplayActionKey formats an action's key for the status bar and help,
// e.g. "alt+S" as "Alt+Shift+S".
func (kb *KeyBindingsConfig) DisplayActionKey(action string) string {
	key := kb.GetActionKey(action)
	if key == "" {
		return ""
	}
	return displayKey(key)
}

func displayKey(key string) string {
	parts := strings.Split(key, "+")
	hasShift := false
	for _, p := range parts {
		if strings.EqualFold(p, "shift") {
			hasShift = true
		}
	}

	out := make([]string, 0, len(parts)+1)
	for i, part := range parts {
		if part == "" {
			continue
		}
		upperLetter := len(part) == 1 && part[0] >= 'A' && part[0] <= 'Z'
		if upperLetter && !hasShift && i > 0 {
			out = append(out, "Shift")
		}
		out = append(out, strings.ToUpper(part[:1])+part[1:])
	}
	return strings.Join(out, "+")
}

// Validate reports whether the modifiers are usable, with a warning for
// combinations that work but clash with common terminal shortcuts.
func (kb *KeyBindingsConfig) Validate() (bool, string) {
	primary, secondary := kb.Primary(), kb.Secondary()

	if primary == "shift" || secondary == "shift" {
		return false, "Shift alone conflicts with typing"
	}
	if strings.Contains(primary, "ctrl") || strings.Contains(secondary, "ctrl") {
		return true, "Warning: Ctrl may conflict with terminal shortcuts (Ctrl+C, Ctrl+Z, Ctrl+D)"
	}
	return true, ""
}
