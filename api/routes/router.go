package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stampcard-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/stampcard-backend/api/controllers/auth"
	loyaltycontrollers "github.com/angelmondragon/stampcard-backend/api/controllers/loyalty"
	"github.com/angelmondragon/stampcard-backend/api/middleware"
	"github.com/angelmondragon/stampcard-backend/internal/auth"
	"github.com/angelmondragon/stampcard-backend/internal/loyalty"
	"github.com/angelmondragon/stampcard-backend/internal/stats"
	"github.com/angelmondragon/stampcard-backend/internal/users"
	"github.com/angelmondragon/stampcard-backend/pkg/auth/session"
	"github.com/angelmondragon/stampcard-backend/pkg/config"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/metrics"
	"github.com/angelmondragon/stampcard-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	redis.IdempotencyStore
	controllers.Pinger
	middleware.RateLimiterStore
}

// Services bundles the domain services mounted by the router.
type Services struct {
	Auth       auth.Service
	Users      users.Service
	Ledger     loyalty.Ledger
	Redemption loyalty.Redemption
	Issuer     loyalty.Issuer
	Stats      stats.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	sessions session.AccessSessionChecker,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.CORS),
		middleware.Logging(logg, httpMetrics),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginUsernameLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterUsernameLimit,
	)
	loginLimit := middleware.AuthRateLimit(loginPolicy, redisStore, logg)
	registerLimit := middleware.AuthRateLimit(registerPolicy, redisStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisStore,
		}))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	authenticated := middleware.Auth(cfg.JWT, sessions, logg)
	idempotent := middleware.Idempotency(redisStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", authcontrollers.AuthLogin(svc.Auth, logg))
			r.With(registerLimit, idempotent).Post("/register", authcontrollers.AuthRegister(svc.Auth, logg))
			r.Post("/refresh", authcontrollers.AuthRefresh(svc.Auth, logg))
			r.With(authenticated).Post("/logout", authcontrollers.AuthLogout(svc.Auth, logg))
			r.With(authenticated).Post("/change-password", authcontrollers.AuthChangePassword(svc.Auth, logg))
		})

		r.Route("/barista", func(r chi.Router) {
			r.With(registerLimit, idempotent).Post("/register", authcontrollers.BaristaRegister(svc.Auth, logg))
			r.With(loginLimit).Post("/login", authcontrollers.BaristaLogin(svc.Auth, logg))
			r.With(loginLimit).Post("/login-with-code", authcontrollers.BaristaLoginWithCode(svc.Auth, logg))
			r.With(loginLimit).Post("/verify-code", authcontrollers.BaristaVerifyCode(svc.Auth, logg))
			r.With(authenticated, middleware.RequireCapability(enums.CapViewStats, logg)).
				Get("/stats", controllers.BaristaStats(svc.Stats, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/me", controllers.Me(svc.Users, logg))
			r.Get("/user/profile", controllers.GetProfile(svc.Users, logg))
			r.Patch("/user/profile", controllers.UpdateProfile(svc.Users, logg))

			r.Route("/loyalty", func(r chi.Router) {
				r.Use(idempotent)
				r.Post("/codes", loyaltycontrollers.IssueCode(svc.Issuer, logg))
				r.Post("/reset", loyaltycontrollers.Reset(svc.Ledger, svc.Users, logg))
				r.Get("/status", loyaltycontrollers.Status(svc.Ledger, svc.Users, logg))
				r.Get("/history", loyaltycontrollers.History(svc.Ledger, svc.Users, logg))

				r.With(middleware.RequireCapability(enums.CapRedeemCodes, logg)).
					Post("/redeem", loyaltycontrollers.Redeem(svc.Redemption, logg))
				r.With(middleware.RequireCapability(enums.CapRedeemCodes, logg)).
					Post("/check", loyaltycontrollers.Check(svc.Redemption, logg))
				r.With(middleware.RequireCapability(enums.CapCreditStamps, logg)).
					Post("/stamps", loyaltycontrollers.AddStamps(svc.Ledger, svc.Users, logg))
			})
		})
	})

	return r
}
