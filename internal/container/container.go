package container

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-account-lifecycle/config"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer"
)

// Process-wide infrastructure built by cmd/main and read by the router when
// it wires the account modules. Optional pieces stay nil when unavailable.
type components struct {
	cfg     *config.Config
	logger  *logrus.Logger
	pgPool  *pgxpool.Pool
	redis   *redis.Client
	jwt     *helpers.JWTManager
	mailgun *mailer.Mailgun
	rabbit  *helpers.RabbitPublisher
}

var (
	mu sync.RWMutex
	c  components
)

func set(f func(*components)) {
	mu.Lock()
	defer mu.Unlock()
	f(&c)
}

func get() components {
	mu.RLock()
	defer mu.RUnlock()
	return c
}

func SetConfig(v *config.Config)              { set(func(c *components) { c.cfg = v }) }
func GetConfig() *config.Config               { return get().cfg }
func SetLogger(v *logrus.Logger)              { set(func(c *components) { c.logger = v }) }
func GetLogger() *logrus.Logger               { return get().logger }
func SetPGPool(v *pgxpool.Pool)               { set(func(c *components) { c.pgPool = v }) }
func GetPGPool() *pgxpool.Pool                { return get().pgPool }
func SetRedis(v *redis.Client)                { set(func(c *components) { c.redis = v }) }
func GetRedis() *redis.Client                 { return get().redis }
func SetJWT(v *helpers.JWTManager)            { set(func(c *components) { c.jwt = v }) }
func SetMailgun(v *mailer.Mailgun)            { set(func(c *components) { c.mailgun = v }) }
func GetMailgun() *mailer.Mailgun             { return get().mailgun }
func SetRabbitPub(v *helpers.RabbitPublisher) { set(func(c *components) { c.rabbit = v }) }
func GetRabbitPub() *helpers.RabbitPublisher  { return get().rabbit }

// GetJWT falls back to a manager built from the session settings.
func GetJWT() *helpers.JWTManager {
	mu.Lock()
	defer mu.Unlock()
	if c.jwt == nil && c.cfg != nil {
		c.jwt = helpers.NewJWTManager(c.cfg.Session.Secret, c.cfg.Session.TTL, c.cfg.AppName)
	}
	return c.jwt
}

// Reset clears every component. Tests use it between cases.
func Reset() { set(func(c *components) { *c = components{} }) }
