// config/config.go

// Package config loads corsgate configuration with the usual precedence:
// explicit flags > environment (CORSGATE_*) > config.* file > defaults.
// The parsed values convert into policy types via Policy, Fragment, and
// Registry; the decision engine itself never reads configuration.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dalemusser/corsgate/policy"
)

// RouteConfig is a partial CORS policy for one route pattern or group
// prefix. Nil slices / pointers inherit from the application-wide policy.
type RouteConfig struct {
	AllowedOrigins     []string       `mapstructure:"allowed_origins"`
	AllowedMethods     []string       `mapstructure:"allowed_methods"`
	AllowedHeaders     []string       `mapstructure:"allowed_headers"`
	ExposedHeaders     []string       `mapstructure:"exposed_headers"`
	AllowCredentials   *bool          `mapstructure:"allow_credentials"`
	MaxAge             *time.Duration `mapstructure:"max_age"`
	SendOriginWildcard *bool          `mapstructure:"send_origin_wildcard"`
}

// Config holds the full corsgate configuration.
type Config struct {
	// runtime
	Env      string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error …

	// application-wide CORS policy
	EnableCORS         bool          `mapstructure:"enable_cors"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins"`
	AllowedMethods     []string      `mapstructure:"allowed_methods"`
	AllowedHeaders     []string      `mapstructure:"allowed_headers"`
	ExposedHeaders     []string      `mapstructure:"exposed_headers"`
	AllowCredentials   bool          `mapstructure:"allow_credentials"`
	MaxAge             time.Duration `mapstructure:"max_age"`
	SendOriginWildcard bool          `mapstructure:"send_origin_wildcard"`

	// per-route and per-group overrides; config-file only
	Routes       map[string]RouteConfig `mapstructure:"routes"`
	Groups       map[string]RouteConfig `mapstructure:"groups"`
	ExemptRoutes []string               `mapstructure:"exempt_routes"`
}

// Load merges defaults → config.* file(s) → env vars → explicit flags into
// one Config. Final precedence (highest wins): flags(explicit) > env >
// config > defaults. Env vars use the CORSGATE_ prefix, e.g.
// CORSGATE_ALLOWED_ORIGINS='["https://app.example.com"]'.
func Load(logger *zap.Logger) (*Config, error) {
	// 0) Optionally load .env (safe: real env still wins over .env)
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info("Loaded .env file")
	}

	// 1) Define flags (only *explicitly set* flags will override)
	pflag.String("env", "dev", `Runtime environment "dev"|"prod"`)
	pflag.String("log_level", "debug", "Log level")

	pflag.Bool("enable_cors", false, "Enable CORS processing")
	pflag.String("allowed_origins", "", `JSON array of origins, e.g. '["https://a.example","https://*.b.example"]'`)
	pflag.String("allowed_methods", "", `JSON array of methods, e.g. '["GET","POST"]'`)
	pflag.String("allowed_headers", "", `JSON array of headers, e.g. '["Accept","Authorization"]'`)
	pflag.String("exposed_headers", "", `JSON array of headers, e.g. '["Link"]'`)
	pflag.Bool("allow_credentials", false, "Allow cross-origin credential sharing")
	pflag.String("max_age", "0", `Preflight cache lifetime (e.g. "300s", "5m", or plain seconds; 0 disables)`)
	pflag.Bool("send_origin_wildcard", true, `Emit the literal "*" on wildcard matches instead of echoing the origin`)
	pflag.Parse()

	// 2) Viper + env
	v := viper.New()
	v.SetEnvPrefix("CORSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind env for all keys so Unmarshal sees them.
	for _, k := range allKeys() {
		_ = v.BindEnv(k)
	}

	// 3) Optional config.* files (yaml|yml|json|toml)
	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := "config." + ext
		if _, err := os.Stat(file); err != nil {
			continue
		}
		b, err := os.ReadFile(file)
		if err != nil {
			if logger != nil {
				logger.Warn("cannot read config file", zap.String("file", file), zap.Error(err))
			}
			continue
		}
		v.SetConfigType(ext)
		if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
			if logger != nil {
				logger.Warn("cannot decode config file", zap.String("file", file), zap.Error(err))
			}
			continue
		}
		if logger != nil {
			logger.Info("Loaded config file", zap.String("file", file))
		}
	}

	// 4) Defaults (lowest precedence)
	setDefaults(v)

	// 5) Apply *explicit* flags (highest precedence)
	pflag.CommandLine.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	// 6) Normalize list keys (accept JSON strings → []string)
	if err := normalizeListKeys(logger, v,
		"allowed_origins",
		"allowed_methods",
		"allowed_headers",
		"exposed_headers",
		"exempt_routes",
	); err != nil {
		return nil, err
	}

	// 7) Build struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode corsgate config: %w", err)
	}

	dur, err := parseDurationFlexible(v.Get("max_age"), 0)
	if err != nil && logger != nil {
		logger.Warn("invalid max_age; disabling preflight caching",
			zap.Any("value", v.Get("max_age")), zap.Error(err))
	}
	cfg.MaxAge = dur

	// 8) Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for contradictions. The
// credentials/wildcard check mirrors policy.Resolve so misconfiguration is
// reported at load time with config-key names rather than later with policy
// field names.
func (c *Config) Validate() error {
	var invalid []string

	if c.EnableCORS {
		if len(c.AllowedOrigins) == 0 {
			invalid = append(invalid, "allowed_origins (JSON array) required when enable_cors=true")
		}
		if c.AllowCredentials && wildcardOnly(c.AllowedOrigins) {
			invalid = append(invalid, `cannot use a wildcard-only allowed_origins with allow_credentials=true`)
		}
	}
	if c.MaxAge < 0 {
		invalid = append(invalid, "max_age must be >= 0")
	}
	for pattern, rc := range c.Routes {
		if rc.AllowCredentials != nil && *rc.AllowCredentials && rc.AllowedOrigins != nil && wildcardOnly(rc.AllowedOrigins) {
			invalid = append(invalid, fmt.Sprintf("route %q: wildcard-only allowed_origins with allow_credentials=true", pattern))
		}
	}
	for prefix, rc := range c.Groups {
		if rc.AllowCredentials != nil && *rc.AllowCredentials && rc.AllowedOrigins != nil && wildcardOnly(rc.AllowedOrigins) {
			invalid = append(invalid, fmt.Sprintf("group %q: wildcard-only allowed_origins with allow_credentials=true", prefix))
		}
	}

	if len(invalid) == 0 {
		return nil
	}
	return fmt.Errorf("corsgate configuration errors: %s", strings.Join(invalid, " | "))
}

func wildcardOnly(origins []string) bool {
	if len(origins) == 0 {
		return false
	}
	for _, o := range origins {
		if strings.TrimSpace(o) != "*" {
			return false
		}
	}
	return true
}

// Policy converts the application-wide settings into a resolved policy.
func (c *Config) Policy() (policy.Policy, error) {
	matchers, err := ParseOrigins(c.AllowedOrigins)
	if err != nil {
		return policy.Policy{}, err
	}
	base := policy.Policy{
		AllowOrigin:        matchers,
		AllowCredentials:   c.AllowCredentials,
		AllowMethods:       c.AllowedMethods,
		AllowHeaders:       c.AllowedHeaders,
		ExposeHeaders:      c.ExposedHeaders,
		MaxAge:             c.MaxAge,
		SendOriginWildcard: c.SendOriginWildcard,
	}
	// Resolve with no fragments normalizes and validates the base.
	return policy.Resolve(base)
}

// Registry builds the route/group override table from the Routes, Groups,
// and ExemptRoutes sections.
func (c *Config) Registry() (*policy.Registry, error) {
	reg := policy.NewRegistry()
	for pattern, rc := range c.Routes {
		frag, err := rc.Fragment()
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", pattern, err)
		}
		reg.Route(pattern, frag)
	}
	for prefix, rc := range c.Groups {
		frag, err := rc.Fragment()
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", prefix, err)
		}
		reg.Group(prefix, frag)
	}
	for _, pattern := range c.ExemptRoutes {
		reg.Exempt(pattern)
	}
	return reg, nil
}

// Fragment converts a per-route section into a policy fragment.
func (rc RouteConfig) Fragment() (policy.Fragment, error) {
	frag := policy.Fragment{
		AllowCredentials:   rc.AllowCredentials,
		AllowMethods:       rc.AllowedMethods,
		AllowHeaders:       rc.AllowedHeaders,
		ExposeHeaders:      rc.ExposedHeaders,
		MaxAge:             rc.MaxAge,
		SendOriginWildcard: rc.SendOriginWildcard,
	}
	if rc.AllowedOrigins != nil {
		matchers, err := ParseOrigins(rc.AllowedOrigins)
		if err != nil {
			return policy.Fragment{}, err
		}
		frag.AllowOrigin = matchers
	}
	return frag, nil
}

// ParseOrigins converts configured origin strings into matchers:
//   - "*" is the wildcard
//   - "https://*.example.com" matches any subdomain of example.com
//   - "~<regexp>" compiles the rest as a regular expression over the full
//     origin string
//   - anything else is an exact origin
func ParseOrigins(origins []string) ([]policy.OriginMatcher, error) {
	matchers := make([]policy.OriginMatcher, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		var (
			m   policy.OriginMatcher
			err error
		)
		switch {
		case o == "":
			continue
		case o == "*":
			m = policy.Wildcard()
		case strings.HasPrefix(o, "~"):
			m, err = policy.Pattern(strings.TrimPrefix(o, "~"))
		case strings.Contains(o, "://*."):
			m, err = policy.Subdomains(o)
		default:
			m, err = policy.Exact(o)
		}
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

func allKeys() []string {
	return []string{
		"env", "log_level",
		"enable_cors",
		"allowed_origins", "allowed_methods", "allowed_headers",
		"exposed_headers", "allow_credentials", "max_age",
		"send_origin_wildcard",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "debug")

	// Defaults match the original library's behavior: CORS off until
	// enabled; once enabled, wildcard origin, the common method set, any
	// request header, nothing exposed, no preflight caching.
	v.SetDefault("enable_cors", false)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("allowed_methods", []string{"GET", "HEAD", "POST", "OPTIONS", "PUT", "PATCH", "DELETE"})
	v.SetDefault("allowed_headers", []string{"*"})
	v.SetDefault("exposed_headers", []string{})
	v.SetDefault("allow_credentials", false)
	v.SetDefault("max_age", "0")
	v.SetDefault("send_origin_wildcard", true)
}

// normalizeListKeys coerces JSON-string values into []string for the given keys.
func normalizeListKeys(logger *zap.Logger, v *viper.Viper, keys ...string) error {
	for _, key := range keys {
		val := v.Get(key)
		switch t := val.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			var arr []string
			if err := json.Unmarshal([]byte(s), &arr); err != nil {
				return fmt.Errorf("config key %q expects a JSON array string, got %q: %w", key, s, err)
			}
			v.Set(key, arr)
		case []interface{}:
			arr := make([]string, 0, len(t))
			for _, e := range t {
				arr = append(arr, fmt.Sprint(e))
			}
			v.Set(key, arr)
		case []string, nil:
			// already correct or unset
		default:
			if logger != nil {
				logger.Warn("unexpected type for list key; expected JSON array/string",
					zap.String("key", key), zap.Any("value", t))
			}
		}
	}
	return nil
}

// Dump returns a pretty JSON string of the config for debugging. Nothing in
// Config is secret, so no redaction is needed.
func (c Config) Dump() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}
