package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/listingwatcher/internal/site"
	perrors "sjsage522/listingwatcher/pkg/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultSite is used when no site is configured anywhere
const DefaultSite = "ebay"

// Config represents the application configuration
type Config struct {
	// Marketplace and search
	Site         string `yaml:"site" validate:"required,oneof=ebay avito"`
	Query        string `yaml:"query" validate:"required"`
	MinPrice     int    `yaml:"min_price" validate:"gte=1"`
	MaxPrice     int    `yaml:"max_price" validate:"gtfield=MinPrice"`
	DelaySeconds int    `yaml:"delay" validate:"gte=1"`
	MaxItems     int    `yaml:"max_items" validate:"gte=1"`
	ItemsFile    string `yaml:"items_file" validate:"required"`

	// Policies
	CapPolicy      string `yaml:"cap_policy" validate:"oneof=skip truncate"`
	UnpricedPolicy string `yaml:"unpriced_policy" validate:"oneof=log open"`
	Pairing        string `yaml:"pairing" validate:"oneof=anchored positional"`

	FetchTimeoutSeconds int `yaml:"fetch_timeout" validate:"gte=1"`

	// Redis configuration, empty address disables the event stream
	RedisAddr            string `yaml:"redis_addr"`
	RedisDB              int    `yaml:"redis_db" validate:"gte=0"`
	RedisStream          string `yaml:"redis_stream" validate:"required_with=RedisAddr"`
	RedisStreamMaxLength int    `yaml:"redis_stream_max_length" validate:"gte=0"`

	// Memcache configuration, empty address disables the page cache
	MemcacheAddr string `yaml:"memcache_addr"`

	// Environment
	Environment string `yaml:"environment"`
}

// Delay returns the pause before each fetch
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// FetchTimeout returns the limit for one search page download
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Defaults returns the configuration for a site before any user input
func Defaults(siteName string) (*Config, error) {
	profile, err := site.Lookup(siteName)
	if err != nil {
		return nil, perrors.NewValidation("invalid site", err)
	}
	d := profile.Defaults
	return &Config{
		Site:                 profile.Name,
		Query:                d.Query,
		MinPrice:             d.MinPrice,
		MaxPrice:             d.MaxPrice,
		DelaySeconds:         5,
		MaxItems:             d.MaxItems,
		ItemsFile:            d.ItemsFile,
		CapPolicy:            d.CapPolicy,
		UnpricedPolicy:       d.UnpricedPolicy,
		Pairing:              "anchored",
		FetchTimeoutSeconds:  30,
		RedisStream:          "listings",
		RedisStreamMaxLength: 1000,
		Environment:          "development",
	}, nil
}

// setting is one user-settable value, reachable as a flag and an env variable
type setting struct {
	name  string
	env   string
	usage string
	apply func(c *Config, v string) error
}

func stringSetting(name, env, usage string, field func(c *Config) *string) setting {
	return setting{name: name, env: env, usage: usage, apply: func(c *Config, v string) error {
		*field(c) = v
		return nil
	}}
}

func intSetting(name, env, usage string, field func(c *Config) *int) setting {
	return setting{name: name, env: env, usage: usage, apply: func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return perrors.NewValidation(fmt.Sprintf("%s must be an integer, got %q", name, v), err)
		}
		*field(c) = n
		return nil
	}}
}

var settings = []setting{
	stringSetting("query", "WATCHER_QUERY", "search query", func(c *Config) *string { return &c.Query }),
	intSetting("min_price", "WATCHER_MIN_PRICE", "minimum price in the compared currency (USD for ebay)", func(c *Config) *int { return &c.MinPrice }),
	intSetting("max_price", "WATCHER_MAX_PRICE", "maximum price in the compared currency, also the notification threshold", func(c *Config) *int { return &c.MaxPrice }),
	intSetting("delay", "WATCHER_DELAY_SECONDS", "delay between requests in seconds", func(c *Config) *int { return &c.DelaySeconds }),
	intSetting("max_items", "WATCHER_MAX_ITEMS", "max number of items to show after new request", func(c *Config) *int { return &c.MaxItems }),
	stringSetting("items_file", "WATCHER_ITEMS_FILE", "file with already seen listings", func(c *Config) *string { return &c.ItemsFile }),
	stringSetting("cap_policy", "WATCHER_CAP_POLICY", "skip|truncate when a cycle exceeds max_items", func(c *Config) *string { return &c.CapPolicy }),
	stringSetting("unpriced_policy", "WATCHER_UNPRICED_POLICY", "log|open for listings without a price", func(c *Config) *string { return &c.UnpricedPolicy }),
	stringSetting("pairing", "WATCHER_PAIRING", "anchored|positional price pairing", func(c *Config) *string { return &c.Pairing }),
	intSetting("fetch_timeout", "WATCHER_FETCH_TIMEOUT_SECONDS", "search page download timeout in seconds", func(c *Config) *int { return &c.FetchTimeoutSeconds }),
	stringSetting("redis_addr", "REDIS_ADDR", "redis address for the listing event stream, empty disables it", func(c *Config) *string { return &c.RedisAddr }),
	intSetting("redis_db", "REDIS_DB", "redis database", func(c *Config) *int { return &c.RedisDB }),
	stringSetting("redis_stream", "REDIS_STREAM", "redis stream name", func(c *Config) *string { return &c.RedisStream }),
	intSetting("redis_stream_max_length", "REDIS_STREAM_MAX_LENGTH", "approximate redis stream length cap", func(c *Config) *int { return &c.RedisStreamMaxLength }),
	stringSetting("memcache_addr", "MEMCACHE_ADDR", "memcached address for the page cache, empty disables it", func(c *Config) *string { return &c.MemcacheAddr }),
	stringSetting("environment", "WATCHER_ENVIRONMENT", "development|production", func(c *Config) *string { return &c.Environment }),
}

// Load builds the configuration from site defaults, an optional YAML file,
// the environment and finally the command-line arguments, in increasing
// precedence. The returned Config is non-nil whenever the site is known, so
// callers can print the help text next to a validation error.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("listingwatcher", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	siteFlag := fs.String("site", "", "marketplace profile: "+strings.Join(site.Names(), "|"))
	fileFlag := fs.String("config", "", "optional YAML configuration file")
	for _, s := range settings {
		fs.String(s.name, "", s.usage)
	}
	if err := fs.Parse(args); err != nil {
		return nil, perrors.NewValidation("invalid arguments", err)
	}
	if fs.NArg() > 0 {
		return nil, perrors.NewValidation(fmt.Sprintf("unexpected argument %q", fs.Arg(0)), nil)
	}

	var file []byte
	if path := firstNonEmpty(*fileFlag, getEnv("WATCHER_CONFIG", "")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, perrors.NewConfiguration("failed to read config file "+path, err)
		}
		file = data
	}

	var fromFile struct {
		Site string `yaml:"site"`
	}
	if err := yaml.Unmarshal(file, &fromFile); err != nil {
		return nil, perrors.NewConfiguration("failed to parse config file", err)
	}

	siteName := firstNonEmpty(*siteFlag, getEnv("WATCHER_SITE", ""), fromFile.Site, DefaultSite)
	cfg, err := Defaults(siteName)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(file, cfg); err != nil {
		return cfg, perrors.NewConfiguration("failed to parse config file", err)
	}
	cfg.Site = strings.ToLower(strings.TrimSpace(siteName))

	for _, s := range settings {
		if v := getEnv(s.env, ""); v != "" {
			if err := s.apply(cfg, v); err != nil {
				return cfg, err
			}
		}
	}

	var applyErr error
	fs.Visit(func(f *flag.Flag) {
		if applyErr != nil {
			return
		}
		for _, s := range settings {
			if s.name == f.Name {
				applyErr = s.apply(cfg, f.Value.String())
				return
			}
		}
	})
	if applyErr != nil {
		return cfg, applyErr
	}

	cfg.Query = strings.TrimSpace(cfg.Query)
	return cfg, cfg.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every rule in the struct tags
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return perrors.NewValidation("invalid configuration", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return perrors.NewValidation(strings.Join(msgs, "; "), err)
}

func describe(fe validator.FieldError) string {
	name := argName(fe.StructField())
	switch fe.Tag() {
	case "required", "required_with":
		return name + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", name, argName(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

// argName maps a struct field to its command-line name
func argName(field string) string {
	switch field {
	case "Site":
		return "site"
	case "DelaySeconds":
		return "delay"
	case "FetchTimeoutSeconds":
		return "fetch_timeout"
	}
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// HelpText lists the arguments together with their current values
func HelpText(c *Config) string {
	var b strings.Builder
	line := strings.Repeat("=", 50)
	b.WriteString(line + "\n")
	b.WriteString("Arguments and current values:\n\n")
	fmt.Fprintf(&b, "-site=%s - marketplace profile: %s\n", c.Site, strings.Join(site.Names(), "|"))
	fmt.Fprintf(&b, "-query=%s - search query\n", c.Query)
	fmt.Fprintf(&b, "-min_price=%d - minimum price in the compared currency (USD for ebay)\n", c.MinPrice)
	fmt.Fprintf(&b, "-max_price=%d - maximum price in the compared currency, also the notification threshold\n", c.MaxPrice)
	fmt.Fprintf(&b, "-delay=%d - delay between requests in seconds\n", c.DelaySeconds)
	fmt.Fprintf(&b, "-max_items=%d - max number of items to show after new request\n", c.MaxItems)
	fmt.Fprintf(&b, "-items_file=%s - file with already seen listings\n", c.ItemsFile)
	fmt.Fprintf(&b, "-cap_policy=%s - skip|truncate when a cycle exceeds max_items\n", c.CapPolicy)
	fmt.Fprintf(&b, "-unpriced_policy=%s - log|open for listings without a price\n", c.UnpricedPolicy)
	fmt.Fprintf(&b, "-pairing=%s - anchored|positional price pairing\n", c.Pairing)
	fmt.Fprintf(&b, "-fetch_timeout=%d - search page download timeout in seconds\n", c.FetchTimeoutSeconds)
	b.WriteString("-config=<file> - optional YAML configuration file\n")
	b.WriteString(line + "\n")
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
