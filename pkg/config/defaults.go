package config

import _ "embed"

//go:embed builtin.yaml
var builtinYAML []byte

// BuiltinDefaults returns a copy of the embedded convention-default
// configuration document, used by the HTTP control plane's
// /factory_reset_config handler to write a fresh butterfly.yaml.
func BuiltinDefaults() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}

// DefaultTickSeconds is the brain-tick scheduler period used when
// brains.settings.tick_seconds is absent.
const DefaultTickSeconds = 60

// DefaultPollSeconds is the wakeup/scheduled-tasks poll period used when
// tools.wakeup.poll_seconds or tools.tasks.poll_seconds is absent.
const DefaultPollSeconds = 60

// DefaultAutonomyCooldownSeconds gates autonomy turns when neither
// tools.settings.autonomy_cooldown_seconds nor
// tools.wakeup.autonomy_cooldown_seconds is set.
const DefaultAutonomyCooldownSeconds = 60

// DefaultUIEventLogPath is where UI events are appended when
// tools.settings.ui_event_log_path is unset.
const DefaultUIEventLogPath = "./data/ui_events.log"

// DefaultContextRefreshDebounce matches the orchestrator's non-reentrant
// context-refresh guard window.
const DefaultContextRefreshDebounce = 30

// ContextDocTruncateLimit bounds the context doc injected into
// autonomy-tick and system-user turns.
const ContextDocTruncateLimit = 8000
