package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/greenroute/greenroute_core/internal/db"
	"github.com/greenroute/greenroute_core/internal/dgvi"
	"github.com/greenroute/greenroute_core/internal/store"
)

func main() {
	month := flag.String("month", "", "month to rebuild, formatted YYYY-MM (required)")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	log.Println("🔄 GreenRoute Core - DGVI Rebuild Tool")
	log.Println("======================================")

	if *month == "" {
		log.Fatalf("❌ -month is required (e.g. -month 2025-08)")
	}

	log.Println("📡 Connecting to database...")
	dbPool, err := db.GetDB()
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✅ Database connected")

	ctx := context.Background()

	var edgeCount, pointCount int
	err = dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM road_network").Scan(&edgeCount)
	if err != nil {
		log.Fatalf("❌ Failed to count road edges: %v", err)
	}
	err = dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM gvi_points WHERE month = $1", *month).Scan(&pointCount)
	if err != nil {
		log.Fatalf("❌ Failed to count GVI points: %v", err)
	}

	log.Printf("📊 Database statistics:")
	log.Printf("   Road edges: %d", edgeCount)
	log.Printf("   GVI points for %s: %d", *month, pointCount)

	if edgeCount == 0 {
		log.Fatalf("❌ Road network is empty. Import the road graph first!")
	}
	if pointCount == 0 {
		log.Printf("⚠️  No GVI points for %s: every edge will score 0", *month)
	}

	if !*yes {
		fmt.Println()
		fmt.Printf("⚠️  This will overwrite all DGVI rows for %s!\n", *month)
		fmt.Print("Continue? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)

		if confirm != "yes" && confirm != "y" {
			log.Println("❌ Rebuild cancelled")
			os.Exit(0)
		}
	}

	fmt.Println()
	log.Printf("🔄 Starting DGVI rebuild for %s...", *month)
	startTime := time.Now()

	evaluator := dgvi.NewEvaluator(store.New(dbPool))
	processed, err := evaluator.RebuildMonth(ctx, *month)
	if err != nil {
		log.Fatalf("❌ Rebuild failed after %d edges: %v", processed, err)
	}

	duration := time.Since(startTime)

	s := store.New(dbPool)
	stats, err := s.MonthStats(ctx, *month)
	if err != nil {
		log.Printf("⚠️  Failed to read month stats: %v", err)
	}

	fmt.Println()
	log.Println("✅ DGVI rebuild completed!")
	log.Printf("⏱️  Duration: %v", duration)
	log.Printf("📊 Rebuild statistics:")
	log.Printf("   Edges processed: %d", processed)
	if stats != nil {
		log.Printf("   DGVI range: [%.2f, %.2f], mean %.2f", stats.MinDGVI, stats.MaxDGVI, stats.AvgDGVI)
		log.Printf("   Normalized range: [%.2f, %.2f]", stats.MinNormalized, stats.MaxNormalized)
	}

	fmt.Println()
	log.Println("🚀 Month is ready for green routing!")
}
