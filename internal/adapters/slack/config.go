package slack

// Config holds Slack adapter configuration
type Config struct {
	Enabled          bool             `yaml:"enabled"`
	BotToken         string           `yaml:"bot_token"`
	AppToken         string           `yaml:"app_token"`
	SocketMode       bool             `yaml:"socket_mode"`
	RemindersChannel string           `yaml:"reminders_channel"`
	AllowedUsers     []string         `yaml:"allowed_users"`
	AllowedChannels  []string         `yaml:"allowed_channels"`
	RateLimit        *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// DefaultConfig returns default Slack configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		SocketMode:      true,
		AllowedUsers:    []string{},
		AllowedChannels: []string{},
		RateLimit:       DefaultRateLimitConfig(),
	}
}

// SocketModeReady reports whether the inbound listener can start.
// Socket Mode requires an xapp-... app-level token next to the bot token.
func (c *Config) SocketModeReady() bool {
	if !c.Enabled || !c.SocketMode {
		return false
	}
	return c.AppToken != "" && c.BotToken != ""
}
