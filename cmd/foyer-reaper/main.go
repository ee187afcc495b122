package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/foyer/pkg/audit"
	"github.com/platinummonkey/foyer/pkg/realm"
)

var (
	dbURL         = flag.String("db-url", getEnv("FOYER_DATABASE_URL", "postgres://localhost/foyer?sslmode=disable"), "PostgreSQL connection URL")
	auditSchedule = flag.String("audit-schedule", "30 1 * * *", "Cron schedule for audit log cleanup (default: 01:30 UTC)")
	tokenSchedule = flag.String("token-schedule", "0 * * * *", "Cron schedule for expired token cleanup (default: every hour)")
	retentionDays = flag.Int("retention-days", getEnvInt("FOYER_AUDIT_RETENTION_DAYS", 90), "Days of audit history to keep")
	runOnce       = flag.Bool("run-once", false, "Run both cleanups once and exit (for testing)")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}

	tokens := realm.NewTokenStore(db)
	if err := tokens.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure token schema: %v", err)
	}

	policy := audit.RetentionPolicy{RetentionDays: *retentionDays}

	if *runOnce {
		if err := reapAudit(auditLog, policy); err != nil {
			log.Fatalf("Audit cleanup failed: %v", err)
		}
		if err := reapTokens(tokens); err != nil {
			log.Fatalf("Token cleanup failed: %v", err)
		}
		log.Println("Cleanup completed successfully")
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*auditSchedule, func() {
		if err := reapAudit(auditLog, policy); err != nil {
			log.Printf("Audit cleanup failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule audit cleanup: %v", err)
	}

	_, err = c.AddFunc(*tokenSchedule, func() {
		if err := reapTokens(tokens); err != nil {
			log.Printf("Token cleanup failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule token cleanup: %v", err)
	}

	c.Start()
	log.Println("Foyer reaper started")
	log.Printf("Audit cleanup schedule: %s (keeping %d days)", *auditSchedule, *retentionDays)
	log.Printf("Token cleanup schedule: %s", *tokenSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Reaper stopped")
}

func reapAudit(auditLog *audit.DBLogger, policy audit.RetentionPolicy) error {
	removed, err := auditLog.Cleanup(context.Background(), policy)
	if err != nil {
		return err
	}
	log.Printf("Removed %d audit events older than %d days", removed, policy.RetentionDays)
	return nil
}

func reapTokens(tokens *realm.TokenStore) error {
	removed, err := tokens.CleanupExpired(context.Background())
	if err != nil {
		return err
	}
	log.Printf("Removed %d expired tokens", removed)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
