package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PSTVIEW_LOG_LEVEL.
const EnvPrefix = "PSTVIEW"

// Backend selections.
const (
	BackendAuto    = "auto"
	BackendGoPST   = "gopst"
	BackendReadpst = "readpst"
)

// Config captures the options shared by every command.
type Config struct {
	ConfigFile    string
	Backend       string
	ReadpstPath   string
	LogLevel      string
	LogDir        string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	StateDir      string
}

// ExportConfig captures the export-all options.
type ExportConfig struct {
	OutputDir          string
	Folder             int
	Format             string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	KeepFolders        bool
	MarkSeen           bool
	DryRun             bool
	IncludeHeader      []string
	IncludeBody        []string
	ExcludeHeader      []string
	ExcludeBody        []string
}

// UsesIMAP reports whether messages go to a mailbox instead of a directory.
func (c ExportConfig) UsesIMAP() bool {
	return c.IMAPHost != ""
}

// RegisterFlags attaches the shared flags to the root command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("backend", BackendAuto, "PST backend: auto, gopst, readpst")
	flags.String("readpst-path", "readpst", "readpst binary used by the readpst backend")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for rotated log files (stderr only when empty)")
	flags.Int("log-max-size", 10, "Maximum log file size in megabytes before rotation")
	flags.Int("log-max-backups", 5, "Number of rotated log files to keep")
	flags.Int("log-max-age", 28, "Days to keep rotated log files")
	flags.String("state-dir", "", "Directory for export-all state files (default ~/.pstview/state)")
}

// RegisterExportFlags attaches the export-all flags to cmd.
func RegisterExportFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("out", "o", "", "Directory to write .eml files into")
	flags.Int("folder", 0, "Only export this folder (and its sub-folders) by sequence number")
	flags.String("format", "eml", "Export format for directory output: eml, txt")
	flags.String("imap-host", "", "IMAP server hostname (uploads instead of writing files)")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder for exported mail")
	flags.Bool("keep-folders", false, "Recreate the archive's folder path below the target folder")
	flags.Bool("mark-seen", false, "Store uploaded messages as read")
	flags.Bool("dry-run", false, "Simulate the export and emit stats without writing")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
}

// newViper binds cmd's flags, PSTVIEW_* environment variables and the
// optional config file. Explicit flags win over the environment, which wins
// over the file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := v.GetString("config")
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &pathErr) || errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return v, nil
}

// LoadConfig resolves the shared options for cmd.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return Config{}, err
	}

	stateDir := v.GetString("state-dir")
	if stateDir != "" {
		stateDir = filepath.Clean(stateDir)
	}

	cfg := Config{
		ConfigFile:    v.GetString("config"),
		Backend:       strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		ReadpstPath:   v.GetString("readpst-path"),
		LogLevel:      normalizeLevel(v.GetString("log-level")),
		LogDir:        v.GetString("log-dir"),
		LogMaxSizeMB:  v.GetInt("log-max-size"),
		LogMaxBackups: v.GetInt("log-max-backups"),
		LogMaxAgeDays: v.GetInt("log-max-age"),
		StateDir:      stateDir,
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadExportConfig resolves the export-all options for cmd.
func LoadExportConfig(cmd *cobra.Command) (ExportConfig, error) {
	v, err := newViper(cmd)
	if err != nil {
		return ExportConfig{}, err
	}

	cfg := ExportConfig{
		OutputDir:          v.GetString("out"),
		Folder:             v.GetInt("folder"),
		Format:             strings.ToLower(v.GetString("format")),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		TargetFolder:       v.GetString("target-folder"),
		KeepFolders:        v.GetBool("keep-folders"),
		MarkSeen:           v.GetBool("mark-seen"),
		DryRun:             v.GetBool("dry-run"),
	}
	// Regex lists are read from the flags directly; viper would split them on commas.
	flags := cmd.Flags()
	if cfg.IncludeHeader, err = flags.GetStringArray("include-header"); err != nil {
		return ExportConfig{}, err
	}
	if cfg.IncludeBody, err = flags.GetStringArray("include-body"); err != nil {
		return ExportConfig{}, err
	}
	if cfg.ExcludeHeader, err = flags.GetStringArray("exclude-header"); err != nil {
		return ExportConfig{}, err
	}
	if cfg.ExcludeBody, err = flags.GetStringArray("exclude-body"); err != nil {
		return ExportConfig{}, err
	}
	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if err := validateExportConfig(cfg); err != nil {
		return ExportConfig{}, err
	}
	return cfg, nil
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	return level
}

func validateConfig(cfg Config) error {
	switch cfg.Backend {
	case BackendAuto, BackendGoPST, BackendReadpst:
	default:
		return fmt.Errorf("invalid --backend: %s", cfg.Backend)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	if cfg.LogMaxSizeMB < 0 || cfg.LogMaxBackups < 0 || cfg.LogMaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	return nil
}

func validateExportConfig(cfg ExportConfig) error {
	if cfg.OutputDir == "" && cfg.IMAPHost == "" {
		return fmt.Errorf("either --out or --imap-host is required")
	}
	if cfg.OutputDir != "" && cfg.IMAPHost != "" {
		return fmt.Errorf("--out and --imap-host are mutually exclusive")
	}
	if cfg.Folder < 0 {
		return fmt.Errorf("--folder must be a positive folder number")
	}
	switch cfg.Format {
	case "eml", "txt":
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}

	if cfg.UsesIMAP() {
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required")
		}
		if cfg.IMAPPass == "" && !cfg.DryRun {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
		if cfg.Format != "eml" {
			return fmt.Errorf("--format %s cannot be uploaded over IMAP", cfg.Format)
		}
	}

	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}
	return nil
}

// ResolveStateDir returns StateDir, or ~/.pstview/state when it is unset.
// Only export-all needs it, so the home directory is looked up lazily.
func (c Config) ResolveStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no --state-dir given and %w", err)
	}
	return filepath.Join(home, ".pstview", "state"), nil
}
