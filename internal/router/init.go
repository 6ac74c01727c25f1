package router

import (
	"github.com/oksasatya/go-account-lifecycle/internal/application"
	"github.com/oksasatya/go-account-lifecycle/internal/application/session"
	"github.com/oksasatya/go-account-lifecycle/internal/application/token"
	"github.com/oksasatya/go-account-lifecycle/internal/container"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/repository"
	"github.com/oksasatya/go-account-lifecycle/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/go-account-lifecycle/internal/infrastructure/postgres"
	"github.com/oksasatya/go-account-lifecycle/internal/infrastructure/redisstore"
	handlers "github.com/oksasatya/go-account-lifecycle/internal/interface/http"
	"github.com/oksasatya/go-account-lifecycle/internal/router/modules"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer/templates"
)

type AccountModuleDeps struct {
	Repo     repository.AccountRepository
	Sessions *session.Manager
	Service  *application.AccountService
	Handler  *handlers.AccountHandler
	Cookies  *helpers.CookieManager
}

func buildAccountRepository() repository.AccountRepository {
	if container.GetConfig().StoreDriver == "postgres" {
		if pool := container.GetPGPool(); pool != nil {
			return pginfra.NewAccountRepository(pool)
		}
		container.GetLogger().Warn("postgres store selected without a pool, falling back to memory")
	}
	return memory.NewAccountRepository()
}

func buildSessionStore() session.Store {
	if rdb := container.GetRedis(); rdb != nil {
		return redisstore.NewSessionStore(rdb)
	}
	return memory.NewSessionStore()
}

// buildDispatcher picks how emails leave the process. MAIL_SEND_ENABLED=false
// logs them; otherwise MAIL_DISPATCH chooses between the queue and Mailgun,
// falling back to whichever one is available.
func buildDispatcher() mailer.Dispatcher {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	pub, mg := container.GetRabbitPub(), container.GetMailgun()

	switch {
	case !cfg.Mail.Enabled:
		return mailer.NewLogDispatcher(logger)
	case cfg.Mail.Dispatch == "direct" && mg != nil:
		return mailer.NewDirectDispatcher(mg)
	case pub != nil:
		return mailer.NewQueueDispatcher(pub)
	case mg != nil:
		return mailer.NewDirectDispatcher(mg)
	default:
		logger.Warn("no email transport configured, emails will only be logged")
		return mailer.NewLogDispatcher(logger)
	}
}

func buildAccountDeps() AccountModuleDeps {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	repo := buildAccountRepository()
	tokens := token.NewIssuer()
	sessions := session.NewManager(buildSessionStore(), container.GetJWT(), tokens, logger)
	cookies := helpers.NewCookieManager(cfg.Session.Cookie, cfg.Session.CookieDomain, cfg.Session.CookieSecure)

	service := application.NewAccountService(application.AccountDeps{
		Repo:     repo,
		Tokens:   tokens,
		Sessions: sessions,
		Hasher:   helpers.NewPasswordHasher(cfg.BcryptCost),
		Mail:     buildDispatcher(),
		Brand: templates.Brand{
			AppName:        cfg.AppName,
			CompanyName:    cfg.Brand.CompanyName,
			CompanyAddress: cfg.Brand.CompanyAddress,
			LogoURL:        cfg.Brand.LogoURL,
			SupportURL:     cfg.Brand.SupportURL,
			PrivacyURL:     cfg.Brand.PrivacyURL,
			DashboardURL:   cfg.Links.AppURL + "/dashboard",
		},
		Links: application.Links{
			VerifyURL:   cfg.Links.VerifyEmail,
			ResetURL:    cfg.Links.ResetPassword,
			RecoveryURL: cfg.Links.AccountRecovery,
		},
		Logger: logger,
	})

	return AccountModuleDeps{
		Repo:     repo,
		Sessions: sessions,
		Service:  service,
		Handler:  handlers.NewAccountHandler(service, cookies, logger),
		Cookies:  cookies,
	}
}

// InitModules builds the account stack from the container and queues its
// modules on the registry. The returned service is drained on shutdown.
func InitModules(r *Registry) *application.AccountService {
	deps := buildAccountDeps()
	r.Add(modules.NewAuthModule(deps.Handler))
	r.Add(
		modules.NewAccountModule(deps.Handler, deps.Sessions, deps.Service, deps.Cookies, container.GetLogger()),
		healthModule(container.GetConfig().AppName),
	)
	return deps.Service
}
