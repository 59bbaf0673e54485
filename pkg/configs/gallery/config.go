package gallery

import "time"

type GalleryConfig struct {
	server   *ServerConfig
	database string
	catalog  *CatalogConfig
	auth     *AuthConfig
	log      *LogConfig
}

func (c *GalleryConfig) Server() *ServerConfig {
	return c.server
}

// Connection string for the mirror database.
//
// postgres://..., sqlite:PATH or memory:
func (c *GalleryConfig) Database() string {
	return c.database
}

func (c *GalleryConfig) Catalog() *CatalogConfig {
	return c.catalog
}

func (c *GalleryConfig) Auth() *AuthConfig {
	return c.auth
}

func (c *GalleryConfig) Log() *LogConfig {
	return c.log
}

type ServerConfig struct {
	port int32
	cert string
	key  string
}

// port to listen. default = 8080
func (s *ServerConfig) Port() int32 {
	return s.port
}

// TLS certificate and key files. Both are empty when TLS is not used.
func (s *ServerConfig) TLS() (cert string, key string) {
	return s.cert, s.key
}

// Configuration of the external catalog (Contentful).
type CatalogConfig struct {
	endpoint    string
	space       string
	environment string
	token       string
	timeout     time.Duration
	retries     int
	backoff     time.Duration
	limit       int
	rate        float64
}

// base URL of the API. empty means the default of the client.
func (c *CatalogConfig) Endpoint() string {
	return c.endpoint
}

func (c *CatalogConfig) Space() string {
	return c.space
}

// empty means the default of the client.
func (c *CatalogConfig) Environment() string {
	return c.environment
}

func (c *CatalogConfig) Token() string {
	return c.token
}

// timeout of each request. default = 30s
func (c *CatalogConfig) Timeout() time.Duration {
	return c.timeout
}

// times to retry on 429 or 5xx. default = 3
func (c *CatalogConfig) Retries() int {
	return c.retries
}

// initial interval of retries. default = 500ms
func (c *CatalogConfig) Backoff() time.Duration {
	return c.backoff
}

// max items in a response. 0 means not to specify.
func (c *CatalogConfig) Limit() int {
	return c.limit
}

// max requests per second. 0 means unlimited.
func (c *CatalogConfig) Rate() float64 {
	return c.rate
}

type AuthConfig struct {
	key    []byte
	admins []string
}

// HMAC key for identity tokens.
func (a *AuthConfig) Key() []byte {
	return a.key
}

// subjects having admin capability.
func (a *AuthConfig) Admins() []string {
	return a.admins
}

type LogConfig struct {
	level      string
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// debug, info, warn, error or off. default = "warn"
func (l *LogConfig) Level() string {
	return l.level
}

// log file path. empty means stderr.
func (l *LogConfig) File() string {
	return l.file
}

// size to rotate log file. default = 100
func (l *LogConfig) MaxSizeMB() int {
	return l.maxSizeMB
}

// number of rotated log files to keep. default = 3
func (l *LogConfig) MaxBackups() int {
	return l.maxBackups
}

// days to keep rotated log files. 0 means forever.
func (l *LogConfig) MaxAgeDays() int {
	return l.maxAgeDays
}
