package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"kalshiEdgeBot/internal/adapters/binancefeed"
	"kalshiEdgeBot/internal/adapters/logger"
	"kalshiEdgeBot/internal/utils"
)

// Fetches a candle window for the underlying and saves it as CSV, so
// forecaster parameters can be tuned against real history offline.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "underlying symbol")
	interval := flag.String("interval", "1h", "candle interval")
	limit := flag.Int("limit", 500, "number of candles to fetch")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	appLogger := logger.NewStdLogger(logger.LevelInfo)

	feed, err := binancefeed.New(binancefeed.Config{Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance feed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	klines, err := feed.GetKlines(ctx, *symbol, *interval, *limit)
	if err != nil {
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{
		"symbol":   *symbol,
		"interval": *interval,
		"count":    len(klines),
	})

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}
	filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s_%s.csv", *symbol, *interval, time.Now().Format("20060102")))
	if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved candle window", map[string]interface{}{"filename": filename})
}
