// The dashboard gateway serves the user dashboard origin: it receives tokens
// relayed from the marketing origin, seals them into its own session cookie,
// guards every page navigation, and proxies quiz and source resources to the
// Authority under the caller's bearer token.
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
	"github.com/MustafaKhaled/quizify-ai-saas/internal/platform/redis"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/relay"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/session"
	"github.com/MustafaKhaled/quizify-ai-saas/pkg/platform/httputil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard gateway:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("dashboard", cfg.LogLevel)
	m := metrics.New(prometheus.DefaultRegisterer)

	auditor := audit.NewDispatcher(audit.NewMemorySink(1024), 256, "dashboard", log)
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

	var consume relay.ConsumeRecorder = relay.NewMemoryConsumeRecorder()
	rdb, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		consume = relay.NewRedisConsumeRecorder(rdb.Client)
		log.Info("relay consumption state shared via redis")
	}

	handler := gateway.New(client, sessions, auditor, m, log, "dashboard")
	capture := relay.NewMiddleware(sessions, consume, verifier, auditor, log, m)

	revalidate := guard.RevalidateNever
	if cfg.RevalidateSessions {
		revalidate = guard.RevalidateAlways
	}
	pageGuard := guard.New(sessions, verifier, guard.Policy{
		LoginPath:      "/login",
		HomePath:       "/",
		ExemptPrefixes: []string{"/api/", "/metrics", "/healthz", "/assets/"},
		Revalidate:     revalidate,
	}, auditor, log, m)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	// Relay capture runs before the guard so a freshly relayed token turns
	// into a session within the same navigation.
	r.Use(capture.Handler)
	r.Use(pageGuard.Middleware)

	handler.RegisterAuth(r)
	handler.RegisterDashboard(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(rdb))
	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	return serve(ctx, log, cfg.Addr, r)
}

func healthz(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			if err := rdb.Health(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
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
