package server

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"vigil/internal/config"
)

type Config struct {
	ListenAddr     string
	AuthToken      string
	AllowedOrigins []string
	SettingsFile   string
	SweepInterval  time.Duration
	ReaperDisabled bool
	LogLevel       string
	LogBufferSize  int
	MaxRoots       int
	Verbose        bool
	Quiet          bool
	ShowVersion    bool
	Sources        map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

const defaultSettingsFile = "vigild.yaml"

type flagValues struct {
	Listen         string
	Token          string
	Origins        string
	SettingsFile   string
	SweepInterval  time.Duration
	ReaperDisabled bool
	LogLevel       string
	MaxRoots       int
	Verbose        bool
	Quiet          bool
	Help           bool
	Version        bool
	Set            map[string]bool
}

// LoadConfig resolves daemon configuration from four layers. Built-in
// defaults come first, then the YAML settings file, then VIGILD_*
// environment variables, then CLI flags. Sources records which layer
// won for each value.
func LoadConfig(args []string) (Config, error) {
	flags, err := parseFlags(args)
	if err != nil {
		return Config{}, err
	}

	settingsFile := defaultSettingsFile
	settingsFileSource := sourceDefault
	if rawFile := strings.TrimSpace(os.Getenv("VIGILD_CONFIG")); rawFile != "" {
		settingsFile = rawFile
		settingsFileSource = sourceEnv
	}
	if flags.Set["config"] {
		trimmed := strings.TrimSpace(flags.SettingsFile)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
		settingsFile = trimmed
		settingsFileSource = sourceFlag
	}

	settings, err := config.LoadSettings(settingsFile)
	if err != nil {
		return Config{}, err
	}
	defaults := config.DefaultSettings()

	cfg := Config{
		SettingsFile: settingsFile,
		Sources:      make(map[string]configSource),
	}
	cfg.Sources["config"] = settingsFileSource

	listen := settings.API.Listen
	listenSource := sourceDefault
	if listen != defaults.API.Listen {
		listenSource = sourceFile
	}
	if rawListen := strings.TrimSpace(os.Getenv("VIGILD_LISTEN")); rawListen != "" {
		listen = rawListen
		listenSource = sourceEnv
	}
	if flags.Set["listen"] {
		trimmed := strings.TrimSpace(flags.Listen)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --listen: value cannot be empty")
		}
		listen = trimmed
		listenSource = sourceFlag
	}
	cfg.ListenAddr = listen
	cfg.Sources["listen"] = listenSource

	token := settings.API.AuthToken
	tokenSource := sourceDefault
	if token != "" {
		tokenSource = sourceFile
	}
	if rawToken := os.Getenv("VIGILD_TOKEN"); rawToken != "" {
		token = rawToken
		tokenSource = sourceEnv
	}
	if flags.Set["token"] {
		token = flags.Token
		tokenSource = sourceFlag
	}
	cfg.AuthToken = token
	cfg.Sources["token"] = tokenSource

	origins := settings.API.AllowedOrigins
	originsSource := sourceDefault
	if len(origins) > 0 {
		originsSource = sourceFile
	}
	if rawOrigins := strings.TrimSpace(os.Getenv("VIGILD_ALLOWED_ORIGINS")); rawOrigins != "" {
		origins = splitOrigins(rawOrigins)
		originsSource = sourceEnv
	}
	if flags.Set["allowed-origins"] {
		origins = splitOrigins(flags.Origins)
		originsSource = sourceFlag
	}
	cfg.AllowedOrigins = origins
	cfg.Sources["allowed-origins"] = originsSource

	sweepInterval := settings.Reaper.SweepInterval
	sweepSource := sourceDefault
	if sweepInterval != defaults.Reaper.SweepInterval {
		sweepSource = sourceFile
	}
	if rawInterval := strings.TrimSpace(os.Getenv("VIGILD_SWEEP_INTERVAL")); rawInterval != "" {
		if parsed, err := time.ParseDuration(rawInterval); err == nil && parsed > 0 {
			sweepInterval = parsed
			sweepSource = sourceEnv
		}
	}
	if flags.Set["sweep-interval"] {
		if flags.SweepInterval <= 0 {
			return Config{}, fmt.Errorf("invalid --sweep-interval: must be > 0")
		}
		sweepInterval = flags.SweepInterval
		sweepSource = sourceFlag
	}
	cfg.SweepInterval = sweepInterval
	cfg.Sources["sweep-interval"] = sweepSource

	reaperDisabled := settings.Reaper.Disabled
	reaperDisabledSource := sourceDefault
	if reaperDisabled {
		reaperDisabledSource = sourceFile
	}
	if rawDisabled := strings.TrimSpace(os.Getenv("VIGILD_REAPER_DISABLED")); rawDisabled != "" {
		if parsed, err := strconv.ParseBool(rawDisabled); err == nil {
			reaperDisabled = parsed
			reaperDisabledSource = sourceEnv
		}
	}
	if flags.Set["no-reaper"] {
		reaperDisabled = flags.ReaperDisabled
		reaperDisabledSource = sourceFlag
	}
	cfg.ReaperDisabled = reaperDisabled
	cfg.Sources["no-reaper"] = reaperDisabledSource

	logLevel := settings.Log.Level
	logLevelSource := sourceDefault
	if logLevel != defaults.Log.Level {
		logLevelSource = sourceFile
	}
	if rawLevel := strings.TrimSpace(os.Getenv("VIGILD_LOG_LEVEL")); rawLevel != "" {
		logLevel = rawLevel
		logLevelSource = sourceEnv
	}
	if flags.Set["log-level"] {
		trimmed := strings.TrimSpace(flags.LogLevel)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --log-level: value cannot be empty")
		}
		logLevel = trimmed
		logLevelSource = sourceFlag
	}
	cfg.LogLevel = logLevel
	cfg.Sources["log-level"] = logLevelSource

	logBufferSize := settings.Log.BufferSize
	logBufferSource := sourceDefault
	if logBufferSize != defaults.Log.BufferSize {
		logBufferSource = sourceFile
	}
	if rawSize := strings.TrimSpace(os.Getenv("VIGILD_LOG_BUFFER_SIZE")); rawSize != "" {
		if parsed, err := strconv.Atoi(rawSize); err == nil && parsed > 0 {
			logBufferSize = parsed
			logBufferSource = sourceEnv
		}
	}
	cfg.LogBufferSize = logBufferSize
	cfg.Sources["log-buffer-size"] = logBufferSource

	maxRoots := settings.Limits.MaxRoots
	maxRootsSource := sourceDefault
	if maxRoots != defaults.Limits.MaxRoots {
		maxRootsSource = sourceFile
	}
	if rawMax := strings.TrimSpace(os.Getenv("VIGILD_MAX_ROOTS")); rawMax != "" {
		if parsed, err := strconv.Atoi(rawMax); err == nil && parsed > 0 {
			maxRoots = parsed
			maxRootsSource = sourceEnv
		}
	}
	if flags.Set["max-roots"] {
		if flags.MaxRoots <= 0 {
			return Config{}, fmt.Errorf("invalid --max-roots: must be > 0")
		}
		maxRoots = flags.MaxRoots
		maxRootsSource = sourceFlag
	}
	cfg.MaxRoots = maxRoots
	cfg.Sources["max-roots"] = maxRootsSource

	verboseSource := sourceDefault
	if flags.Set["verbose"] {
		cfg.Verbose = flags.Verbose
		verboseSource = sourceFlag
	}
	cfg.Sources["verbose"] = verboseSource

	quietSource := sourceDefault
	if flags.Set["quiet"] {
		cfg.Quiet = flags.Quiet
		quietSource = sourceFlag
	}
	cfg.Sources["quiet"] = quietSource

	versionSource := sourceDefault
	cfg.ShowVersion = flags.Version
	if flags.Set["version"] {
		versionSource = sourceFlag
	}
	cfg.Sources["version"] = versionSource

	return cfg, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func parseFlags(args []string) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	defaults := config.DefaultSettings()

	fs := flag.NewFlagSet("vigild", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	listen := fs.String("listen", defaults.API.Listen, "API listen address")
	token := fs.String("token", "", "Auth token for REST/WS")
	origins := fs.String("allowed-origins", "", "Comma-separated websocket origins")
	settingsFile := fs.String("config", defaultSettingsFile, "Settings file path")
	sweepInterval := fs.Duration("sweep-interval", defaults.Reaper.SweepInterval, "Reaper sweep interval")
	noReaper := fs.Bool("no-reaper", false, "Disable the idle reaper")
	logLevel := fs.String("log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	maxRoots := fs.Int("max-roots", defaults.Limits.MaxRoots, "Max watched roots")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	quiet := fs.Bool("quiet", false, "Reduce logging to warnings")
	help := fs.Bool("help", false, "Show help")
	version := fs.Bool("version", false, "Print version and exit")
	helpShort := fs.Bool("h", false, "Show help")
	versionShort := fs.Bool("v", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(fs.Output(), defaults.API.Listen, defaults.Reaper.SweepInterval, defaults.Limits.MaxRoots)
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}

	set := make(map[string]bool)
	fs.Visit(func(flagValue *flag.Flag) {
		set[flagValue.Name] = true
	})

	flags := flagValues{
		Listen:         *listen,
		Token:          *token,
		Origins:        *origins,
		SettingsFile:   *settingsFile,
		SweepInterval:  *sweepInterval,
		ReaperDisabled: *noReaper,
		LogLevel:       *logLevel,
		MaxRoots:       *maxRoots,
		Verbose:        *verbose,
		Quiet:          *quiet,
		Help:           *help || *helpShort,
		Version:        *version || *versionShort,
		Set:            set,
	}

	if flags.Help {
		set["help"] = true
		fs.SetOutput(os.Stdout)
		fs.Usage()
		return flags, flag.ErrHelp
	}

	if flags.Version {
		set["version"] = true
	}

	return flags, nil
}

type helpOption struct {
	Name string
	Desc string
}

func printHelp(out io.Writer, defaultListen string, defaultSweep time.Duration, defaultMaxRoots int) {
	fmt.Fprintln(out, "Usage: vigild [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Vigil filesystem watch daemon with idle root reaping")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Server", []helpOption{
		{
			Name: "--listen ADDR",
			Desc: fmt.Sprintf("API listen address (env: VIGILD_LISTEN, default: %s)", defaultListen),
		},
		{
			Name: "--token TOKEN",
			Desc: "Auth token for REST/WS (env: VIGILD_TOKEN, default: none)",
		},
		{
			Name: "--allowed-origins LIST",
			Desc: "Comma-separated websocket origins (env: VIGILD_ALLOWED_ORIGINS, default: same-host)",
		},
		{
			Name: "--config FILE",
			Desc: fmt.Sprintf("Settings file path (env: VIGILD_CONFIG, default: %s)", defaultSettingsFile),
		},
	})

	writeOptionGroup(out, "Reaper", []helpOption{
		{
			Name: "--sweep-interval DUR",
			Desc: fmt.Sprintf("Reaper sweep interval (env: VIGILD_SWEEP_INTERVAL, default: %s)", defaultSweep),
		},
		{
			Name: "--no-reaper",
			Desc: "Disable the idle reaper (env: VIGILD_REAPER_DISABLED, default: false)",
		},
	})

	writeOptionGroup(out, "Limits", []helpOption{
		{
			Name: "--max-roots N",
			Desc: fmt.Sprintf("Max watched roots (env: VIGILD_MAX_ROOTS, default: %d)", defaultMaxRoots),
		},
	})

	writeOptionGroup(out, "Common", []helpOption{
		{
			Name: "--log-level LEVEL",
			Desc: "Log level: debug, info, warn, error (env: VIGILD_LOG_LEVEL, default: info)",
		},
		{
			Name: "--verbose",
			Desc: "Enable verbose logging (default: false)",
		},
		{
			Name: "--quiet",
			Desc: "Reduce logging to warnings (default: false)",
		},
		{
			Name: "--help",
			Desc: "Show this help message",
		},
		{
			Name: "--version",
			Desc: "Print version and exit",
		},
	})

	fmt.Fprintln(out, "Settings file values override defaults; environment variables override the file; CLI flags override everything.")
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	fmt.Fprintf(out, "  %s:\n", title)
	for _, option := range options {
		fmt.Fprintf(out, "    %-30s %s\n", option.Name, option.Desc)
	}
	fmt.Fprintln(out, "")
}
