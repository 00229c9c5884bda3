package config

import "time"

// ScheduleSettings resolves the scheduler's recognized dotted-path options
// (spec: brains.settings.tick_seconds, tools.wakeup.poll_seconds,
// tools.tasks.poll_seconds, tools.settings.autonomy_cooldown_seconds or
// tools.wakeup.autonomy_cooldown_seconds, tools.settings.ui_event_log_path)
// into durations/paths for pkg/scheduler, the same way the teacher's
// config.go exposes GetAgent/GetChain/GetMCPServer/GetLLMProvider as typed
// convenience accessors over the raw YAML tree.
type ScheduleSettings struct {
	TickInterval       time.Duration
	WakeupPollInterval time.Duration
	TasksPollInterval  time.Duration
	AutonomyCooldown   time.Duration
	UIEventLogPath     string
}

// ScheduleSettings resolves all scheduler knobs in one call.
func (c *Config) ScheduleSettings() ScheduleSettings {
	return ScheduleSettings{
		TickInterval:       c.GetSecondsDuration("brains.settings.tick_seconds", DefaultTickSeconds),
		WakeupPollInterval: c.GetSecondsDuration("tools.wakeup.poll_seconds", DefaultPollSeconds),
		TasksPollInterval:  c.GetSecondsDuration("tools.tasks.poll_seconds", DefaultPollSeconds),
		AutonomyCooldown:   c.autonomyCooldown(),
		UIEventLogPath:     c.GetString("tools.settings.ui_event_log_path", DefaultUIEventLogPath),
	}
}

// autonomyCooldown implements the spec's fallback order: a value at
// tools.settings.autonomy_cooldown_seconds wins; otherwise
// tools.wakeup.autonomy_cooldown_seconds; otherwise the default.
func (c *Config) autonomyCooldown() time.Duration {
	if _, ok := dottedLookup(c.Raw, "tools.settings.autonomy_cooldown_seconds"); ok {
		return c.GetSecondsDuration("tools.settings.autonomy_cooldown_seconds", DefaultAutonomyCooldownSeconds)
	}
	if _, ok := dottedLookup(c.Raw, "tools.wakeup.autonomy_cooldown_seconds"); ok {
		return c.GetSecondsDuration("tools.wakeup.autonomy_cooldown_seconds", DefaultAutonomyCooldownSeconds)
	}
	return time.Duration(DefaultAutonomyCooldownSeconds) * time.Second
}

// JobAuditLogPath resolves a per-job audit log path override
// (tools.<name>.audit_log_path), falling back to def.
func (c *Config) JobAuditLogPath(jobName, def string) string {
	return c.GetString("tools."+jobName+".audit_log_path", def)
}
