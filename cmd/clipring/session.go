package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/spideyz0r/clipring/pkg/config"
	"github.com/spideyz0r/clipring/pkg/logging"
	"github.com/spideyz0r/clipring/pkg/storage"
)

// flagKeys maps global flags to the config keys they override.
var flagKeys = map[string]string{
	"db":         "database.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func addGlobalFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	f.String("config", "", "path to config file (default ~/.clipring/config.yaml)")
	f.String("db", "", "path to the history database")
	f.String("log-level", "", "log level: debug|info|warn|error")
	f.String("log-format", "", "log format: auto|text|json")
}

// session is the state shared by every command: the resolved
// configuration, the log file and, when requested, the open store.
type session struct {
	cfg  *config.Config
	v    *viper.Viper
	db   *storage.DB
	logs io.Closer
}

type sessionOpts struct {
	store   bool
	logFile bool
}

// bindViper wires the global flags into v under their config keys.
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag %s: %w", flag, err)
			}
		}
	}
	return nil
}

// loadConfig reads the config file and applies env and flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *viper.Viper, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}

	loaded, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	cfg := *loaded

	v := config.NewViper()
	if err := bindViper(cmd, v); err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyOverrides(v); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, v, nil
}

func openSession(cmd *cobra.Command, opts sessionOpts) (*session, error) {
	cfg, v, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{
		Format: logging.ParseFormat(cfg.Log.Format),
		Level:  logging.ParseLevel(cfg.Log.Level),
	}
	if opts.logFile {
		logOpts.Dir = cfg.Log.Dir
	}
	logs, err := logging.Setup(logOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	s := &session{cfg: cfg, v: v, logs: logs}
	if opts.store {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := storage.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		s.db = db
	}
	return s, nil
}

func (s *session) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("failed to close history", "err", err)
		}
	}
	if s.logs != nil {
		_ = s.logs.Close()
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", arg)
	}
	return id, nil
}

// readPassword returns CLIPRING_BACKUP_PASSWORD when set, otherwise
// prompts on the terminal, twice when confirm is set.
func readPassword(v *viper.Viper, confirm bool) (string, error) {
	if pw := v.GetString("backup.password"); pw != "" {
		return pw, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no terminal to read the backup password from; set CLIPRING_BACKUP_PASSWORD")
	}

	fmt.Fprint(os.Stderr, "Backup password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	if len(pw) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm password: ")
		again, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("error reading password confirmation: %w", err)
		}
		if !bytes.Equal(pw, again) {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return string(pw), nil
}
