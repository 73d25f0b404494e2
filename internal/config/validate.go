package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535")
	}
	if c.Queue.SigningKey == "" {
		add("queue.signing_key", "is required")
	}
	if c.Queue.Retries < 0 {
		add("queue.retries", "must not be negative")
	}
	if u, err := url.Parse(c.Queue.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("queue.public_base_url", "must be an absolute http(s) URL")
	}
	if c.Redis.Addr == "" {
		add("redis.addr", "is required")
	}

	longest := c.Stages.Extract
	for stage, b := range c.Budgets() {
		if b <= 0 {
			add("stages."+string(stage), "budget must be positive")
		}
		longest = max(longest, b)
	}
	// Stage handlers answer within the delivery, so the server must outlive the longest budget.
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < longest {
		add("server.write_timeout", "%s is shorter than the longest stage budget %s", c.Server.WriteTimeout, longest)
	}
	// Results must survive until the report stage reads them.
	if worst := c.WorstCaseRuntime(); c.Store.TTL <= worst {
		add("store.ttl", "%s must exceed the worst-case job runtime %s", c.Store.TTL, worst)
	}

	if c.Pipeline.MinContentChars < 1 {
		add("pipeline.min_content_chars", "must be positive")
	}
	if c.Credits.Basic < 0 || c.Credits.Standard < 0 || c.Credits.Comprehensive < 0 {
		add("credits", "must not be negative")
	}
	if c.RateLimit.RPS <= 0 {
		add("ratelimit.rps", "must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "must be one of: debug, info, warn, error")
	}
	return errors.Join(errs...)
}
