package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hri/contact-sync/internal/acstub"
	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/pkg/logger"
)

func main() {
	logger.Warn("starting marketing API STUB for local runs only; all state is in memory")

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "8089"
	}
	token := os.Getenv("AC_API_TOKEN")

	stub := acstub.New(token)
	if os.Getenv("STUB_SEED") != "false" {
		seed(stub, time.Now())
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      identity(stub.Handler()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("stub listening", "addr", server.Addr, "base_url", "http://localhost:"+port+"/api/3")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("stub server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("stub forced to shutdown", "error", err.Error())
	}
	logger.Info("stub stopped", "imports", len(stub.Imports()))
}

// seed adds bounced and unsubscribed contacts spread over the last three
// weeks so a local run has something to reconcile.
func seed(stub *acstub.Server, now time.Time) {
	for i := 0; i < 21; i++ {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		stub.Seed(acstub.Contact{
			Contact: activecampaign.Contact{
				Email:       fmt.Sprintf("bounced%02d@example.com", i),
				FirstName:   "Bounced",
				LastName:    fmt.Sprintf("Donor%02d", i),
				BouncedDate: day + " 09:00:00",
			},
			Status: activecampaign.StatusBounced,
			Fields: map[string]string{"2": fmt.Sprintf("CN-B%04d", i)},
		})
		stub.Seed(acstub.Contact{
			Contact: activecampaign.Contact{
				Email:     fmt.Sprintf("unsub%02d@example.com", i),
				FirstName: "Unsub",
				LastName:  fmt.Sprintf("Donor%02d", i),
				CDate:     now.AddDate(-1, 0, -i).Format("2006-01-02") + "T10:00:00-05:00",
				UDate:     day + "T10:00:00-05:00",
			},
			Status: activecampaign.StatusUnsubscribed,
			Fields: map[string]string{"2": fmt.Sprintf("CN-U%04d", i)},
		})
	}
}

func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Server-Identity", "acstub")
		w.Header().Set("X-Server-Warning", "STUB - in-memory state only")
		next.ServeHTTP(w, r)
	})
}
