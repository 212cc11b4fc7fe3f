// Command progress-tail follows the pipeline progress topic and prints each
// event, one line per update. Useful when the orchestrator runs elsewhere.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"marketbrief/progress"
	"marketbrief/types"
)

func main() {
	_ = godotenv.Load()

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		log.Fatal("KAFKA_BROKERS is required")
	}
	groupID := os.Getenv("PROGRESS_GROUP_ID")
	if groupID == "" {
		groupID = "marketbrief-progress-tail"
	}

	consumer, err := progress.NewConsumer(progress.ConsumerConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   os.Getenv("PROGRESS_TOPIC"),
		GroupID: groupID,
		Handler: printEvent,
	})
	if err != nil {
		log.Fatalf("Failed to create progress consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start progress consumer: %v", err)
	}

	<-ctx.Done()
	log.Println("Shutting down")
}

func printEvent(_ context.Context, event types.ProgressEvent) error {
	fmt.Printf("%s  run=%s  [%3.0f%%]  %s\n",
		event.At.Format("15:04:05"), event.RunID, event.Fraction*100, event.Message)
	return nil
}
