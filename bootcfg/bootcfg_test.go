package bootcfg

import (
	"log/slog"
	"strings"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ItestsVerbosity != VerbositySummary {
		t.Errorf("ItestsVerbosity = %v, want summary", cfg.ItestsVerbosity)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
}

func TestParse_RecognizedKeys(t *testing.T) {
	cfg, err := Parse("itests=scheduler,irq itests.verbosity=verbose itests.timeout=5000 itests.shutdown=true log.level=debug log.format=json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Itests != "scheduler,irq" {
		t.Errorf("Itests = %q", cfg.Itests)
	}
	if cfg.ItestsVerbosity != VerbosityVerbose {
		t.Errorf("ItestsVerbosity = %v, want verbose", cfg.ItestsVerbosity)
	}
	if cfg.ItestsTimeoutMS != 5000 {
		t.Errorf("ItestsTimeoutMS = %d, want 5000", cfg.ItestsTimeoutMS)
	}
	if !cfg.ItestsShutdown {
		t.Error("ItestsShutdown = false, want true")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestParse_IgnoresUnrecognizedTokens(t *testing.T) {
	cfg, err := Parse("quiet nosplash root=/dev/sda1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want Default() unchanged by unrecognized tokens", cfg)
	}
}

func TestParse_RejectsOverlongCommandLine(t *testing.T) {
	long := strings.Repeat("a", 513)
	if _, err := Parse(long); err == nil {
		t.Error("expected error for command line over 512 bytes")
	}
}

func TestParse_MalformedTimeoutKeepsDefault(t *testing.T) {
	cfg, err := Parse("itests.timeout=notanumber")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ItestsTimeoutMS != Default().ItestsTimeoutMS {
		t.Errorf("ItestsTimeoutMS = %d, want default preserved on parse failure", cfg.ItestsTimeoutMS)
	}
}

func TestVerbosity_String(t *testing.T) {
	cases := map[Verbosity]string{
		VerbosityQuiet:   "quiet",
		VerbositySummary: "summary",
		VerbosityVerbose: "verbose",
	}
	for v, want := range cases {
		if got := v.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", v, got, want)
		}
	}
}
