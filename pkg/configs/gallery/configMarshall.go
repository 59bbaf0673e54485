package gallery

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/gallery.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type GalleryConfigMarshall struct {
	Server   *ServerConfigMarshall  `yaml:"server,omitempty"`
	Database string                 `yaml:"database"`
	Catalog  *CatalogConfigMarshall `yaml:"catalog"`
	Auth     *AuthConfigMarshall    `yaml:"auth"`
	Log      *LogConfigMarshall     `yaml:"log,omitempty"`
}

var _ Marshalled[*GalleryConfig] = &GalleryConfigMarshall{}

func (g *GalleryConfigMarshall) trySeal(path string) *GalleryConfig {
	server := g.Server
	if server == nil {
		server = &ServerConfigMarshall{}
	}
	log := g.Log
	if log == nil {
		log = &LogConfigMarshall{}
	}
	return &GalleryConfig{
		server:   server.trySeal(path + ".server"),
		database: required(g.Database, path+".database"),
		catalog:  nonnil(g.Catalog, path+".catalog").trySeal(path + ".catalog"),
		auth:     nonnil(g.Auth, path+".auth").trySeal(path + ".auth"),
		log:      log.trySeal(path + ".log"),
	}
}

type ServerConfigMarshall struct {
	Port int32  `yaml:"port,omitempty"`
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

func (s *ServerConfigMarshall) trySeal(path string) *ServerConfig {
	port := s.Port
	if port == 0 {
		port = 8080
	}
	if port < 0 || 65535 < port {
		panic(fmt.Sprintf("%s.port should be in 1-65535: %d", path, port))
	}
	if (s.Cert == "") != (s.Key == "") {
		panic(path + ".cert and " + path + ".key should be given together")
	}
	return &ServerConfig{port: port, cert: s.Cert, key: s.Key}
}

type CatalogConfigMarshall struct {
	Endpoint    string        `yaml:"endpoint,omitempty"`
	Space       string        `yaml:"space"`
	Environment string        `yaml:"environment,omitempty"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Retries     *int          `yaml:"retries,omitempty"`
	Backoff     time.Duration `yaml:"backoff,omitempty"`
	Limit       int           `yaml:"limit,omitempty"`
	Rate        float64       `yaml:"rate,omitempty"`
}

func (c *CatalogConfigMarshall) trySeal(path string) *CatalogConfig {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retries := 3
	if c.Retries != nil {
		retries = nonnegative(*c.Retries, path+".retries")
	}
	backoff := c.Backoff
	if backoff == 0 {
		backoff = 500 * time.Millisecond
	}
	return &CatalogConfig{
		endpoint:    c.Endpoint,
		space:       required(c.Space, path+".space"),
		environment: c.Environment,
		token:       required(c.Token, path+".token"),
		timeout:     nonnegative(timeout, path+".timeout"),
		retries:     retries,
		backoff:     nonnegative(backoff, path+".backoff"),
		limit:       nonnegative(c.Limit, path+".limit"),
		rate:        nonnegative(c.Rate, path+".rate"),
	}
}

type AuthConfigMarshall struct {
	Key    string   `yaml:"key"`
	Admins []string `yaml:"admins"`
}

func (a *AuthConfigMarshall) trySeal(path string) *AuthConfig {
	admins := slices.DeleteFunc(slices.Clone(a.Admins), func(s string) bool {
		return strings.TrimSpace(s) == ""
	})
	if len(admins) == 0 {
		panic(path + ".admins is required")
	}
	return &AuthConfig{
		key:    []byte(required(a.Key, path+".key")),
		admins: admins,
	}
}

type LogConfigMarshall struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups *int   `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

func (l *LogConfigMarshall) trySeal(path string) *LogConfig {
	level := strings.ToLower(l.Level)
	switch level {
	case "":
		level = "warn"
	case "debug", "info", "warn", "error", "off":
	default:
		panic(fmt.Sprintf("%s.level should be one of debug, info, warn, error or off: %s", path, l.Level))
	}
	size := l.MaxSizeMB
	if size == 0 {
		size = 100
	}
	backups := 3
	if l.MaxBackups != nil {
		backups = nonnegative(*l.MaxBackups, path+".max_backups")
	}
	return &LogConfig{
		level:      level,
		file:       l.File,
		maxSizeMB:  nonnegative(size, path+".max_size_mb"),
		maxBackups: backups,
		maxAgeDays: nonnegative(l.MaxAgeDays, path+".max_age_days"),
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func nonnegative[T int | float64 | time.Duration](v T, path string) T {
	if v < 0 {
		panic(fmt.Sprintf("%s should not be negative: %v", path, v))
	}
	return v
}
