package boot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env    string `env:"ENV,default=dev"`
	Server struct {
		Port        string `env:"PORT,default=8080"`
		MetricsPort string `env:"METRICS_PORT,default=8081"`
		Origins     string `env:"ALLOWED_ORIGINS,default=*"`
	}
	Database struct {
		Driver string `env:"DATABASE_DRIVER,default=sqlite3"`
		URL    string `env:"DATABASE_URL,default=file:parley.db?cache=shared"`
	}
	Auth struct {
		Secret        string `env:"JWT_SECRET"`
		PublicJWK     string `env:"JWT_PUBLIC_JWK"`
		PublicJWKFile string `env:"JWT_PUBLIC_JWK_FILE"`
		AllowCallerID bool   `env:"AUTH_ALLOW_CALLER_ID,default=false"`
	}
	Socket struct {
		SendBuffer       int           `env:"SOCKET_SEND_BUFFER,default=64"`
		MaxFrame         int64         `env:"SOCKET_MAX_FRAME,default=131072"`
		MaxSignalPayload int           `env:"SOCKET_MAX_SIGNAL_PAYLOAD,default=65536"`
		PingInterval     time.Duration `env:"SOCKET_PING_INTERVAL,default=25s"`
		WriteTimeout     time.Duration `env:"SOCKET_WRITE_TIMEOUT,default=10s"`
	}
	Chat struct {
		PageSize    int `env:"CHAT_PAGE_SIZE,default=20"`
		MaxPageSize int `env:"CHAT_MAX_PAGE_SIZE,default=100"`
	}
}

func Load() (*Config, error) {
	return LoadWith(envconfig.OsLookuper())
}

// LoadWith reads the configuration from an arbitrary source, tests pass an envconfig.MapLookuper.
func LoadWith(lookuper envconfig.Lookuper) (*Config, error) {
	config := &Config{}
	if err := envconfig.ProcessWith(context.Background(), config, lookuper); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Chat.PageSize <= 0 || c.Chat.MaxPageSize < c.Chat.PageSize {
		return fmt.Errorf("invalid chat page sizes: %d/%d", c.Chat.PageSize, c.Chat.MaxPageSize)
	}
	if c.IsProduction() && c.Auth.AllowCallerID {
		return fmt.Errorf("AUTH_ALLOW_CALLER_ID must not be set in prod")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.Server.Origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c *Config) DatabaseDriver() string {
	return c.Database.Driver
}

func (c *Config) DatabaseURL() string {
	return c.Database.URL
}
