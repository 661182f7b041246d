// Command apimock serves the in-memory coaching backend so missions can be
// run locally without a deployed service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"coach-qa/internal/fakesut"
	"coach-qa/pkg/logging"
)

func main() {
	addr := flag.String("addr", ":8081", "Listen address")
	header := flag.String("tenant-header", "X-User-Email", "Header carrying the caller email")
	admins := flag.String("super-admins", strings.Join(fakesut.DefaultSuperAdmins, ","), "Comma-separated super admin emails")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		logging.InitForCLI(logging.LevelError, os.Stderr)
		logging.Error("apimock", err, "bad --log-level")
		os.Exit(2)
	}
	logging.InitForCLI(lvl, os.Stderr)

	sut := fakesut.New(fakesut.Options{TenantHeader: *header, SuperAdmins: splitCSV(*admins)})
	srv := &http.Server{Addr: *addr, Handler: sut.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logging.Info("apimock", "listening on %s (tenant header %s)", *addr, *header)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error("apimock", err, "serve")
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
