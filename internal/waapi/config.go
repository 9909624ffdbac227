package waapi

import "time"

const (
	DefaultEndpoint = "waapi"
	DefaultRealm    = "realm1"
	DefaultPort     = 8080
)

// Config holds the session transport settings.
type Config struct {
	Endpoint       string
	Realm          string
	ConnectTimeout time.Duration // races dial plus HELLO/WELCOME
	CallTimeout    time.Duration // 0 waits for the router
	WriteTimeout   time.Duration
	PingInterval   time.Duration // 0 disables keepalive pings
	PongTimeout    time.Duration
}

// DefaultConfig returns the settings used against a stock Wwise authoring session.
func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		Realm:          DefaultRealm,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Realm == "" {
		c.Realm = d.Realm
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval > 0 && c.PongTimeout <= c.PingInterval {
		c.PongTimeout = 2 * c.PingInterval
	}
	return c
}
