package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/IdoEfroni/Grocery/internal/config"
	"github.com/IdoEfroni/Grocery/internal/mq"
	pkglog "github.com/IdoEfroni/Grocery/pkg/log"
)

// enqueue publishes a thumbnail request for each SKU given on the command
// line. Meant for backfills and manual retries; the catalog publishes the
// same message when a product image is uploaded.
func main() {
	_ = godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s SKU [SKU ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	skus := flag.Args()
	if len(skus) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      true,
		ServiceName: "thumbnail-enqueue",
	})
	l := pkglog.L()

	publisher, err := mq.NewRabbitPublisher(cfg.Rabbit)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init rabbitmq publisher")
	}
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, sku := range skus {
		if err := publisher.Publish(ctx, &mq.ThumbnailRequest{SKU: sku}); err != nil {
			l.Fatal().Err(err).Str(pkglog.FieldSKU, sku).Msg("failed to publish thumbnail request")
		}
		l.Info().Str(pkglog.FieldSKU, sku).Msg("thumbnail request enqueued")
	}
}
