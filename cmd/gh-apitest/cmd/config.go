package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cli/go-gh/pkg/config"
	"github.com/spf13/pflag"

	"github.com/rneatherway/gh-apitest/internal/store"
)

const defaultTimeout = 30 * time.Second

// getFlagOrElseConfig returns the flag value when it was set on the command
// line, then extensions.apitest.<key> from gh's configuration, then the
// flag's default.
func getFlagOrElseConfig(cfg *config.Config, flags *pflag.FlagSet, key string) (string, error) {
	if flags.Changed(key) {
		return flags.GetString(key)
	}

	value, err := cfg.Get([]string{"extensions", "apitest", key})
	if err == nil {
		return value, nil
	}

	var notFound *config.KeyNotFoundError
	if !errors.As(err, &notFound) {
		return "", err
	}
	return flags.GetString(key)
}

func timeoutSetting(cfg *config.Config, flags *pflag.FlagSet) (time.Duration, error) {
	value, err := getFlagOrElseConfig(cfg, flags, "timeout")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return defaultTimeout, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", value)
	}
	return d, nil
}

// envFilesSetting prefers repeated --env flags over the comma separated
// list in the configuration.
func envFilesSetting(cfg *config.Config, flags *pflag.FlagSet) ([]string, error) {
	if flags.Changed("env") {
		return flags.GetStringArray("env")
	}

	value, err := cfg.Get([]string{"extensions", "apitest", "env"})
	if err != nil {
		var notFound *config.KeyNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, f := range strings.Split(value, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

func defaultDatabasePath() (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "gh-apitest", "apitester.db"), nil
}

func databaseSetting(cfg *config.Config, flags *pflag.FlagSet) (string, error) {
	path, err := getFlagOrElseConfig(cfg, flags, "database")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	return defaultDatabasePath()
}

func openStore(ctx context.Context, cfg *config.Config, flags *pflag.FlagSet) (*store.Store, error) {
	path, err := databaseSetting(cfg, flags)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, path, newLogger())
}

var (
	nwoRE   = regexp.MustCompile("^/[^/]+/[^/]+/?$")
	issueRE = regexp.MustCompile("^/[^/]+/[^/]+/issues/[0-9]+/?$")
)

// parseIssueTarget splits an --issue value into a repository URL to open a
// new issue in, or an issue URL to comment on.
func parseIssueTarget(target string) (repoUrl, issueUrl string, err error) {
	if target == "" {
		return "", "", nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}

	if issueRE.MatchString(u.Path) {
		return "", target, nil
	} else if nwoRE.MatchString(u.Path) {
		return target, "", nil
	}
	return "", "", fmt.Errorf("not a repository or issue URL: %q", target)
}
