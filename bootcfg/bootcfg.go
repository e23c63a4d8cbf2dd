// Package bootcfg parses the kernel command line (spec §6: "UTF-8, at
// most 512 bytes, a sequence of whitespace-separated key=value tokens")
// into a typed Config.
//
// Grounded on main.go's (teacher) argument-parsing loop: a flat loop over
// tokens, switching on the key and assigning into a package-level struct,
// generalized here from "--flag"/"--flag=value" CLI args to the Limine
// command-line's bare "key=value" tokens.
package bootcfg

import (
	"log/slog"
	"strconv"
	"strings"

	kerrors "slopos/errors"
	"slopos/internal/bootinfo"
)

// Verbosity is the itest report detail level.
type Verbosity int

const (
	VerbosityQuiet Verbosity = iota
	VerbositySummary
	VerbosityVerbose
)

func (v Verbosity) String() string {
	switch v {
	case VerbosityQuiet:
		return "quiet"
	case VerbositySummary:
		return "summary"
	case VerbosityVerbose:
		return "verbose"
	default:
		return "summary"
	}
}

func parseVerbosity(s string) Verbosity {
	switch s {
	case "quiet":
		return VerbosityQuiet
	case "verbose":
		return VerbosityVerbose
	default:
		return VerbositySummary
	}
}

// Config is the parsed command line (spec §6's recognized-key set, plus
// the ambient log.level/log.format keys this expanded build adds).
type Config struct {
	// Itests names the suite(s) to run at boot, comma-separated, empty
	// meaning "do not run the itest harness."
	Itests string
	// ItestsVerbosity is the itest report detail level.
	ItestsVerbosity Verbosity
	// ItestsTimeoutMS bounds a single scenario's run time.
	ItestsTimeoutMS uint64
	// ItestsShutdown, when true, halts the machine after the itest run
	// completes instead of falling through to normal boot.
	ItestsShutdown bool

	// LogLevel and LogFormat configure the ambient logging stack.
	LogLevel  slog.Level
	LogFormat string
}

// Default returns the Config a bare command line (no recognized tokens)
// resolves to.
func Default() Config {
	return Config{
		ItestsVerbosity: VerbositySummary,
		ItestsTimeoutMS: 30000,
		LogLevel:        slog.LevelInfo,
		LogFormat:       "text",
	}
}

// Parse tokenizes cmdline on whitespace and assigns each recognized
// key=value token into a Config seeded from Default. Unrecognized keys
// are ignored, matching the teacher's own "accept but ignore" handling of
// compatibility flags it doesn't act on. Returns ErrCommandLineTooLong if
// cmdline exceeds bootinfo.MaxCommandLineBytes.
func Parse(cmdline string) (Config, error) {
	if len(cmdline) > bootinfo.MaxCommandLineBytes {
		return Config{}, kerrors.ErrCommandLineTooLong
	}

	cfg := Default()
	for _, tok := range strings.Fields(cmdline) {
		key, value, hasValue := strings.Cut(tok, "=")
		if !hasValue {
			continue
		}
		switch key {
		case "itests":
			cfg.Itests = value
		case "itests.verbosity":
			cfg.ItestsVerbosity = parseVerbosity(value)
		case "itests.timeout":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				cfg.ItestsTimeoutMS = n
			}
		case "itests.shutdown":
			cfg.ItestsShutdown = value == "1" || value == "true"
		case "log.level":
			cfg.LogLevel = parseLogLevel(value)
		case "log.format":
			if value == "json" || value == "text" {
				cfg.LogFormat = value
			}
		}
	}
	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
