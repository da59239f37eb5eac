package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alekspetrov/taskboard/internal/config"
)

// Status represents feature or dependency status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// Check represents a health check result
type Check struct {
	Name    string
	Status  Status
	Message string
	Fix     string
}

// Report contains all health check results
type Report struct {
	Checks []Check
}

// HasErrors reports whether any check failed outright.
func (r *Report) HasErrors() bool {
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// RunChecks inspects the configuration for missing pieces. It does not dial
// any external service.
func RunChecks(cfg *config.Config) *Report {
	return &Report{
		Checks: []Check{
			checkStore(cfg.Store),
			checkLLM(cfg.LLM),
			checkSlack(cfg),
			checkReminders(cfg),
			checkRedis(cfg.Redis),
		},
	}
}

func checkStore(s *config.StoreConfig) Check {
	c := Check{Name: "store"}
	switch s.Driver {
	case config.DriverRemote:
		c.Status = StatusOK
		c.Message = fmt.Sprintf("remote API at %s", s.URL)
	case config.DriverSQLite, config.DriverSQLite3, config.DriverFile:
		c.Message = fmt.Sprintf("%s at %s", s.Driver, s.Path)
		if _, err := os.Stat(filepath.Dir(s.Path)); err != nil {
			c.Status = StatusWarning
			c.Message += " (directory will be created)"
		} else {
			c.Status = StatusOK
		}
	default:
		c.Status = StatusError
		c.Message = fmt.Sprintf("unknown driver %q", s.Driver)
		c.Fix = "set store.driver to sqlite, sqlite3, file or remote"
	}
	return c
}

func checkLLM(l *config.LLMConfig) Check {
	c := Check{Name: "llm"}
	switch {
	case !l.Enabled:
		c.Status = StatusDisabled
		c.Message = "disabled, messages become tasks verbatim"
	case l.APIKey == "":
		c.Status = StatusWarning
		c.Message = "no API key, fallback parsing only"
		c.Fix = "export ANTHROPIC_API_KEY=..."
	default:
		c.Status = StatusOK
		c.Message = l.Model
	}
	return c
}

func checkSlack(cfg *config.Config) Check {
	s := cfg.Slack
	c := Check{Name: "slack"}
	switch {
	case !s.Enabled:
		c.Status = StatusDisabled
		c.Message = "disabled"
	case s.BotToken == "":
		c.Status = StatusError
		c.Message = "bot token missing"
		c.Fix = "export SLACK_BOT_TOKEN=xoxb-..."
	case !s.SocketModeReady():
		c.Status = StatusWarning
		c.Message = "socket mode off or app token missing, bot will not receive messages"
		c.Fix = "export SLACK_APP_TOKEN=xapp-..."
	default:
		c.Status = StatusOK
		c.Message = "socket mode"
	}
	return c
}

func checkReminders(cfg *config.Config) Check {
	r := cfg.Reminders
	c := Check{Name: "reminders"}
	switch {
	case !r.Enabled:
		c.Status = StatusDisabled
		c.Message = "disabled"
	case cfg.Slack.RemindersChannel == "":
		c.Status = StatusWarning
		c.Message = "no reminders channel, notifications skipped"
		c.Fix = "set slack.reminders_channel or SLACK_REMINDERS_CHANNEL"
	case !cfg.Slack.Enabled:
		c.Status = StatusWarning
		c.Message = "slack disabled, notifications cannot be delivered"
		c.Fix = "set slack.enabled: true"
	default:
		c.Status = StatusOK
		c.Message = fmt.Sprintf("every %s to %s", r.Interval, cfg.Slack.RemindersChannel)
	}
	return c
}

func checkRedis(r *config.RedisConfig) Check {
	if r.URL == "" {
		return Check{Name: "redis", Status: StatusDisabled, Message: "dedupe within this process only"}
	}
	return Check{Name: "redis", Status: StatusOK, Message: "cross-process dedupe"}
}

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}
