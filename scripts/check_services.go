package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/greenroute/greenroute_core/internal/cache"
	"github.com/greenroute/greenroute_core/internal/config"
	"github.com/greenroute/greenroute_core/internal/db"
	"github.com/greenroute/greenroute_core/internal/store"
)

func main() {
	fmt.Println("🔗 Checking GreenRoute service dependencies...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	failed := false

	// Database, PostGIS, pgRouting
	if err := db.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Database: %v\n", err)
		failed = true
	} else {
		fmt.Println("✅ Database (PostGIS + pgRouting) reachable")

		pool, _ := db.GetDB()
		s := store.New(pool)
		months, err := s.AvailableMonths(ctx)
		if err != nil {
			fmt.Printf("⚠️  Could not list DGVI months: %v\n", err)
		} else if len(months) == 0 {
			fmt.Println("⚠️  No DGVI months present, run cmd/rebuild-dgvi first")
		} else {
			fmt.Printf("✅ DGVI months available: %v\n", months)
		}
	}

	// Redis
	if err := cache.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Redis: %v\n", err)
		failed = true
	} else {
		fmt.Println("✅ Redis reachable")
	}

	// External greenness service
	opts := config.FromEnv()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(opts.GreeneryBaseURL + "/health")
	if err != nil {
		fmt.Printf("⚠️  Greenness service: %v (add-gvi-points will fail)\n", err)
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			fmt.Println("✅ Greenness service reachable")
		} else {
			fmt.Printf("⚠️  Greenness service returned status %d\n", resp.StatusCode)
		}
	}

	if failed {
		log.Println("❌ Required services are missing")
		os.Exit(1)
	}
	fmt.Println("\n🚀 All required services are up")
}
