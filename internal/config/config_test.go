package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.GatherTimeout != 8*time.Second {
		t.Errorf("GatherTimeout = %v, want 8s", cfg.GatherTimeout)
	}
	if cfg.MaxConsecutiveTimeouts != 3 {
		t.Errorf("MaxConsecutiveTimeouts = %d, want 3", cfg.MaxConsecutiveTimeouts)
	}
	if cfg.SchedulerTickInterval != 5*time.Second {
		t.Errorf("SchedulerTickInterval = %v, want 5s", cfg.SchedulerTickInterval)
	}
	if cfg.DefaultAbandonCeiling != 0.03 {
		t.Errorf("DefaultAbandonCeiling = %f, want 0.03", cfg.DefaultAbandonCeiling)
	}
	if cfg.AgentWaitTimeout != 20*time.Second {
		t.Errorf("AgentWaitTimeout = %v, want 20s", cfg.AgentWaitTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GATHER_TIMEOUT", "12s")
	t.Setenv("MAX_CONSECUTIVE_TIMEOUTS", "5")
	t.Setenv("DEFAULT_ABANDON_CEILING", "0.05")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.GatherTimeout != 12*time.Second {
		t.Errorf("GatherTimeout = %v, want 12s", cfg.GatherTimeout)
	}
	if cfg.MaxConsecutiveTimeouts != 5 {
		t.Errorf("MaxConsecutiveTimeouts = %d, want 5", cfg.MaxConsecutiveTimeouts)
	}
	if cfg.DefaultAbandonCeiling != 0.05 {
		t.Errorf("DefaultAbandonCeiling = %f, want 0.05", cfg.DefaultAbandonCeiling)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false, want true")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_CONSECUTIVE_TIMEOUTS", "many")
	t.Setenv("GATHER_TIMEOUT", "soon")

	cfg := Load()

	if cfg.MaxConsecutiveTimeouts != 3 {
		t.Errorf("MaxConsecutiveTimeouts = %d, want default 3", cfg.MaxConsecutiveTimeouts)
	}
	if cfg.GatherTimeout != 8*time.Second {
		t.Errorf("GatherTimeout = %v, want default 8s", cfg.GatherTimeout)
	}
}
