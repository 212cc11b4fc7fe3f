package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"marketbrief/api"
	"marketbrief/candidates"
	"marketbrief/checkpoint"
	"marketbrief/common"
	"marketbrief/oracle"
	"marketbrief/orchestrator"
	"marketbrief/progress"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	ora, err := oracle.NewCohereOracleFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize oracle: %v", err)
	}

	store := initializeCheckpoints()
	feeds := initializeFeeds()
	reporter := initializeReporter()
	archiver := initializeArchiver()

	svc := orchestrator.NewService(orchestrator.Deps{
		Candidates:  feeds,
		Oracle:      ora,
		Checkpoints: store,
		Reporter:    reporter,
		Archiver:    archiver,
	}, orchestrator.Config{})

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	r := api.NewRouter(svc, store)
	log.Printf("Starting API server on %s", addr)
	log.Println("API endpoints available:")
	log.Println("  GET  /health")
	log.Println("  POST /api/insight/generate")
	log.Println("  GET  /api/insight/runs/latest")
	log.Println("  GET  /api/insight/runs/:id")

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// initializeCheckpoints prefers Redis (REDIS_ADDR) and falls back to the
// in-memory store, which loses resumability across restarts.
func initializeCheckpoints() checkpoint.Store {
	if os.Getenv("REDIS_ADDR") != "" {
		store, err := checkpoint.NewRedisStoreFromEnv()
		if err != nil {
			log.Fatalf("Failed to connect to Redis checkpoint store: %v", err)
		}
		log.Println("Checkpointing to Redis")
		return store
	}
	log.Println("REDIS_ADDR not set; checkpointing in memory (runs will not survive restarts)")
	return checkpoint.NewMemoryStore()
}

// initializeFeeds builds the RSS candidate store from FEED_URLS, a comma
// separated list of preset names or URLs.
func initializeFeeds() candidates.Store {
	raw := os.Getenv("FEED_URLS")
	if raw == "" {
		raw = "cnbc,marketwatch"
	}
	maxPerFeed := 0
	if v := os.Getenv("FEED_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxPerFeed = n
		}
	}
	extract := strings.EqualFold(os.Getenv("FEED_EXTRACT_TEXT"), "true")
	return candidates.NewRSSStore(strings.Split(raw, ","), maxPerFeed, extract)
}

// initializeReporter always logs progress; KAFKA_BROKERS adds a Kafka
// publisher on top.
func initializeReporter() progress.Reporter {
	reporters := progress.MultiReporter{progress.LogReporter{}}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kr, err := progress.NewKafkaReporter(strings.Split(brokers, ","), os.Getenv("PROGRESS_TOPIC"))
		if err != nil {
			log.Printf("Warning: failed to init Kafka progress reporter: %v (events will only be logged)", err)
		} else {
			log.Printf("Publishing progress events to Kafka (%s)", brokers)
			reporters = append(reporters, kr)
		}
	}
	return reporters
}

// initializeArchiver returns an S3 run archiver if configured via env.
// Required: S3_BUCKET. Optional: S3_REGION, S3_PROFILE, S3_PREFIX,
// S3_USE_PATH_STYLE=true.
func initializeArchiver() orchestrator.Archiver {
	bucket := strings.TrimSpace(os.Getenv("S3_BUCKET"))
	if bucket == "" {
		log.Println("S3 not configured; run archival disabled")
		return nil
	}

	cfg := common.S3Config{
		Region:       strings.TrimSpace(os.Getenv("S3_REGION")),
		Profile:      strings.TrimSpace(os.Getenv("S3_PROFILE")),
		UsePathStyle: strings.EqualFold(strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")), "true"),
	}
	client, err := common.NewS3(context.Background(), cfg)
	if err != nil {
		log.Printf("Warning: failed to init S3 client: %v (archival disabled)", err)
		return nil
	}

	prefix := strings.Trim(strings.TrimSpace(os.Getenv("S3_PREFIX")), "/")
	log.Printf("Archiving finished runs to s3://%s/%s", bucket, prefix)
	return orchestrator.NewS3Archiver(client, bucket, prefix)
}
