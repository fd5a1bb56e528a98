package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwrenner/clubdesk/internal/auth"
	"github.com/dwrenner/clubdesk/internal/config"
	"github.com/dwrenner/clubdesk/internal/email"
	"github.com/dwrenner/clubdesk/internal/handler"
	"github.com/dwrenner/clubdesk/internal/invitation"
	"github.com/dwrenner/clubdesk/internal/middleware"
	"github.com/dwrenner/clubdesk/internal/otp"
	"github.com/dwrenner/clubdesk/internal/payment"
	"github.com/dwrenner/clubdesk/internal/ratelimit"
	"github.com/dwrenner/clubdesk/internal/reconcile"
	"github.com/dwrenner/clubdesk/internal/store"
	"github.com/dwrenner/clubdesk/internal/token"
)

type Server struct {
	db          *sql.DB
	authH       *handler.AuthHandler
	otpH        *handler.OTPHandler
	invitationH *handler.InvitationHandler
	clubH       *handler.ClubHandler
	webhookH    *handler.WebhookHandler

	sessionStore *store.SessionStore
	userStore    *store.UserStore

	limiter ratelimit.Limiter
	poller  *payment.Poller

	logger *slog.Logger
}

func New(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*Server, error) {
	userStore := store.NewUserStore(db)
	clubStore := store.NewClubStore(db)
	householdStore := store.NewHouseholdStore(db)
	sessionStore := store.NewSessionStore(db)
	codeStore := store.NewVerificationCodeStore(db)
	usedTokenStore := store.NewUsedTokenStore(db)
	rateLimitStore := store.NewRateLimitStore(db)
	invitationStore := store.NewInvitationStore(db)
	eventStore := store.NewWebhookEventStore(db)
	orderStore := store.NewOrderStore(db)

	var limiter ratelimit.Limiter
	if cfg.DurableRateLimits {
		limiter = ratelimit.NewStoreLimiter(rateLimitStore)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	tokenSvc, err := token.NewService([]byte(cfg.TokenSigningKey), usedTokenStore)
	if err != nil {
		return nil, err
	}

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	otpSvc := otp.NewService(codeStore, limiter, logger.With("component", "otp"))
	workflow := invitation.NewWorkflow(
		invitationStore, householdStore, userStore, tokenSvc, emailClient,
		logger.With("component", "invitation"),
	)

	stripeClient := payment.NewClient(payment.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})
	reconciler := reconcile.New(eventStore, logger.With("component", "reconcile"))
	processor := payment.NewProcessor(reconciler, orderStore, logger.With("component", "payment"))
	poller := payment.NewPoller(stripeClient, orderStore, cfg.PollInterval(), logger.With("component", "poller"))

	devEcho := !cfg.Production()

	return &Server{
		db:          db,
		authH:       handler.NewAuthHandler(userStore, sessionStore, otpSvc, limiter, emailClient, devEcho, cfg.Production(), logger.With("component", "auth")),
		otpH:        handler.NewOTPHandler(otpSvc, emailClient, devEcho, logger.With("component", "otp_handler")),
		invitationH: handler.NewInvitationHandler(workflow, userStore, cfg.BaseURL, logger.With("component", "invitation_handler")),
		clubH:       handler.NewClubHandler(clubStore, householdStore, logger.With("component", "club")),
		webhookH:    handler.NewWebhookHandler(stripeClient, processor, logger.With("component", "webhook")),

		sessionStore: sessionStore,
		userStore:    userStore,

		limiter: limiter,
		poller:  poller,

		logger: logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// VerificationCodeStore returns the code store for cleanup tasks.
func (s *Server) VerificationCodeStore() *store.VerificationCodeStore {
	return store.NewVerificationCodeStore(s.db)
}

// UsedTokenStore returns the used-token ledger for cleanup tasks.
func (s *Server) UsedTokenStore() *store.UsedTokenStore {
	return store.NewUsedTokenStore(s.db)
}

// RateLimitStore returns the rate-limit counter store for cleanup tasks.
func (s *Server) RateLimitStore() *store.RateLimitStore {
	return store.NewRateLimitStore(s.db)
}

// Limiter returns the active limiter.
func (s *Server) Limiter() ratelimit.Limiter {
	return s.limiter
}

// Poller returns the payment status poller.
func (s *Server) Poller() *payment.Poller {
	return s.poller
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripeWebhook)
	mux.HandleFunc("POST /auth/signup", s.authH.Signup)
	mux.HandleFunc("POST /auth/login", s.authH.Login)
	mux.HandleFunc("POST /auth/verify", s.authH.VerifyLogin)

	// Protected routes
	protected := http.NewServeMux()
	protected.HandleFunc("POST /auth/logout", s.authH.Logout)
	protected.HandleFunc("POST /otp/send", s.otpH.Send)
	protected.HandleFunc("POST /otp/verify", s.otpH.Verify)
	protected.HandleFunc("POST /invitations", s.rateLimitInvites(s.invitationH.Invite))
	protected.HandleFunc("POST /invitations/{id}/resend", s.invitationH.Resend)
	protected.HandleFunc("POST /invitations/{id}/cancel", s.invitationH.Cancel)
	protected.HandleFunc("POST /invitations/accept", s.invitationH.Accept)

	// Admin routes
	admin := http.NewServeMux()
	admin.HandleFunc("POST /admin/invitations", s.invitationH.InviteAdmin)
	admin.HandleFunc("POST /admin/clubs", s.clubH.Create)
	admin.HandleFunc("POST /admin/clubs/{id}/households", s.clubH.CreateHousehold)

	requireAuth := middleware.RequireAuth(s.sessionStore, s.userStore)
	mux.Handle("/", requireAuth(protected))
	mux.Handle("/admin/", requireAuth(middleware.RequireAdmin(admin)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitInvites(h http.HandlerFunc) http.HandlerFunc {
	// Runs behind RequireAuth, so the counter is per authenticated user.
	keyFunc := func(r *http.Request) string {
		return ratelimit.UserKey(auth.UserID(r.Context()))
	}
	rl := middleware.RateLimit(s.limiter, keyFunc, "invite", ratelimit.InvitePerUser, s.logger.With("component", "ratelimit"))
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}
