// Package config loads the engine's flat key/value configuration file
// (spec §6 "Configuration file": SECRET_KEY, ADMIN_PASSWORD, MAX_CHECKS,
// HOST, PORT), generalizing the teacher's envInt/os.Getenv convention
// (internal/server/handler.go) to a config-file-plus-env-override scheme.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Config is the engine's runtime configuration.
type Config struct {
	SecretKey       string
	AdminPasswordHash []byte
	MaxChecks       int // W, the worker pool size (spec §3 "default 20")
	Host            string
	Port            int
	StorePath       string
}

const defaultMaxChecks = 20

// Load reads a flat KEY=VALUE file at path, then applies any of the
// recognized env vars (JUDGE_SECRET_KEY, JUDGE_ADMIN_PASSWORD,
// JUDGE_MAX_CHECKS, JUDGE_HOST, JUDGE_PORT, JUDGE_STORE_PATH) as overrides,
// mirroring the teacher's "env wins" precedence in buildRateLimiterConfig.
func Load(path string) (*Config, error) {
	values := map[string]string{
		"HOST":        "0.0.0.0",
		"PORT":        "9000",
		"MAX_CHECKS":  strconv.Itoa(defaultMaxChecks),
		"STORE_PATH":  "./judge.db",
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("opening config file: %w", err)
			}
		} else {
			defer f.Close()
			if err := parseInto(f, values); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverride(values, "SECRET_KEY", "JUDGE_SECRET_KEY")
	applyEnvOverride(values, "ADMIN_PASSWORD", "JUDGE_ADMIN_PASSWORD")
	applyEnvOverride(values, "MAX_CHECKS", "JUDGE_MAX_CHECKS")
	applyEnvOverride(values, "HOST", "JUDGE_HOST")
	applyEnvOverride(values, "PORT", "JUDGE_PORT")
	applyEnvOverride(values, "STORE_PATH", "JUDGE_STORE_PATH")

	maxChecks, err := strconv.Atoi(values["MAX_CHECKS"])
	if err != nil {
		return nil, fmt.Errorf("MAX_CHECKS must be an integer: %w", err)
	}
	port, err := strconv.Atoi(values["PORT"])
	if err != nil {
		return nil, fmt.Errorf("PORT must be an integer: %w", err)
	}

	cfg := &Config{
		SecretKey: values["SECRET_KEY"],
		MaxChecks: maxChecks,
		Host:      values["HOST"],
		Port:      port,
		StorePath: values["STORE_PATH"],
	}

	raw := values["ADMIN_PASSWORD"]
	switch {
	case raw == "":
		return nil, fmt.Errorf("ADMIN_PASSWORD is required")
	case looksHashed(raw):
		cfg.AdminPasswordHash = []byte(raw)
	default:
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing admin password: %w", err)
		}
		cfg.AdminPasswordHash = hash
	}
	return cfg, nil
}

// looksHashed reports whether raw is already a bcrypt hash (config files may
// store the hash directly rather than a plaintext password to hash at
// startup).
func looksHashed(raw string) bool {
	return strings.HasPrefix(raw, "$2a$") || strings.HasPrefix(raw, "$2b$") || strings.HasPrefix(raw, "$2y$")
}

func parseInto(f *os.File, values map[string]string) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("malformed config line: %q", line)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return scanner.Err()
}

func applyEnvOverride(values map[string]string, key, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		values[key] = v
	}
}
