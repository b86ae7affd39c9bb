// The marketing gateway serves the public site. It owns the signup/login
// entry, and hands authenticated visitors over to the dashboard origin by
// relaying their token through the redirect URL. Public pages are served
// unguarded; only the account area and the dashboard hand-off check the
// session.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/authority"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/gateway"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/guard"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/config"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/httpserver"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/logger"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/metrics"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/middleware"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/relay"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
	"github.com/MustafaKhaled/quizify-ai-saas/pkg/platform/httputil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "marketing gateway:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("marketing", cfg.LogLevel)
	m := metrics.New(prometheus.DefaultRegisterer)

	auditor := audit.NewDispatcher(audit.NewMemorySink(1024), 256, "marketing", log)
	defer auditor.Close()

	sessions, err := session.NewCookieStore(cfg.SessionSecret, session.CookieOptions{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SecureCookies,
	})
	if err != nil {
		return err
	}

	client := authority.New(cfg.AuthorityURL, cfg.AuthorityTimeout, log, m)
	verifier := gateway.NewAuthorityVerifier(client)
	handler := gateway.New(client, sessions, auditor, m, log, "marketing")
	sender := relay.NewSender(sessions, cfg.DashboardURL, "/login", log)

	pageGuard := guard.New(sessions, verifier, guard.Policy{
		LoginPath:      "/login",
		HomePath:       "/",
		ExemptPrefixes: []string{"/api/", "/metrics", "/healthz", "/assets/"},
		Revalidate:     guard.RevalidateNever,
	}, auditor, log, m)

	fs := http.FileServer(http.Dir(cfg.StaticDir))

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))

	handler.RegisterAuth(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Only the account area, the login page, and the dashboard hand-off run
	// under the guard; the rest of the site is public.
	r.Group(func(gr chi.Router) {
		gr.Use(pageGuard.Middleware)
		gr.Handle("/login", fs)
		gr.Handle("/account", fs)
		gr.Handle("/account/*", fs)
		gr.Get("/dashboard", sender.ServeHTTP)
	})
	r.Handle("/*", fs)

	return serve(ctx, log, cfg.Addr, r)
}

func serve(ctx context.Context, log *slog.Logger, addr string, handler http.Handler) error {
	srv := httpserver.New(addr, handler)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
