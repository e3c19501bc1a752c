package server

import (
	"fmt"
	"strings"

	"vigil/internal/logging"
	"vigil/internal/version"
)

func LogStartupFlags(logger *logging.Logger, cfg Config) {
	if logger == nil || cfg.Sources == nil {
		return
	}
	var flags []string
	if cfg.Sources["listen"] == sourceFlag {
		flags = append(flags, formatStringFlag("--listen", cfg.ListenAddr))
	}
	if cfg.Sources["token"] == sourceFlag {
		flags = append(flags, formatTokenFlag(cfg.AuthToken))
	}
	if cfg.Sources["allowed-origins"] == sourceFlag {
		flags = append(flags, formatStringFlag("--allowed-origins", strings.Join(cfg.AllowedOrigins, ",")))
	}
	if cfg.Sources["config"] == sourceFlag {
		flags = append(flags, formatStringFlag("--config", cfg.SettingsFile))
	}
	if cfg.Sources["sweep-interval"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--sweep-interval %s", cfg.SweepInterval))
	}
	if cfg.Sources["no-reaper"] == sourceFlag {
		flags = append(flags, formatBoolFlag("--no-reaper", cfg.ReaperDisabled))
	}
	if cfg.Sources["log-level"] == sourceFlag {
		flags = append(flags, formatStringFlag("--log-level", cfg.LogLevel))
	}
	if cfg.Sources["max-roots"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--max-roots %d", cfg.MaxRoots))
	}
	if cfg.Sources["verbose"] == sourceFlag {
		flags = append(flags, formatBoolFlag("--verbose", cfg.Verbose))
	}
	if cfg.Sources["quiet"] == sourceFlag {
		flags = append(flags, formatBoolFlag("--quiet", cfg.Quiet))
	}

	if len(flags) == 0 {
		return
	}
	logger.Debug("starting with flags", map[string]string{
		"flags": strings.Join(flags, " "),
	})
}

func LogVersionInfo(logger *logging.Logger) {
	if logger == nil {
		return
	}
	info := version.GetVersionInfo()
	message := fmt.Sprintf("Vigil version %s", info.Version)
	var details []string
	if info.Built != "" {
		details = append(details, fmt.Sprintf("built %s", info.Built))
	}
	if info.GitCommit != "" {
		details = append(details, fmt.Sprintf("commit %s", info.GitCommit))
	}
	if len(details) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(details, ", "))
	}
	logger.Info(message, nil)
}

// LoggerFromConfig builds the daemon logger. Verbose and quiet override
// the configured level in that order.
func LoggerFromConfig(cfg Config) *logging.Logger {
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		level = logging.LevelInfo
	}
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	if cfg.Quiet {
		level = logging.LevelWarning
	}
	size := cfg.LogBufferSize
	if size <= 0 {
		size = logging.DefaultBufferSize
	}
	return logging.NewLogger(logging.NewLogBuffer(size), level)
}

func formatBoolFlag(name string, value bool) string {
	if value {
		return name
	}
	return fmt.Sprintf("%s=%t", name, value)
}

func formatStringFlag(name, value string) string {
	if strings.TrimSpace(value) == "" {
		return fmt.Sprintf("%s=\"\"", name)
	}
	return fmt.Sprintf("%s %s", name, value)
}

func formatTokenFlag(token string) string {
	if strings.TrimSpace(token) == "" {
		return "--token=\"\""
	}
	return "--token [set]"
}
