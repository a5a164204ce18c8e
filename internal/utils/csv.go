package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"kalshiEdgeBot/internal/domain"
)

// WriteKlinesToCSV saves a candle window for offline model calibration.
func WriteKlinesToCSV(klines []domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filename, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, k := range klines {
		record := []string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing kline row: %w", err)
		}
	}
	return writer.Error()
}

// ReadKlinesFromCSV loads a candle window saved by WriteKlinesToCSV.
func ReadKlinesFromCSV(filename string) ([]domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	klines := make([]domain.Kline, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 9 {
			return nil, fmt.Errorf("row %d: expected 9 columns, got %d", i+2, len(row))
		}
		openTime, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse open_time: %w", i+2, err)
		}
		closeTime, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse close_time: %w", i+2, err)
		}

		k := domain.Kline{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Symbol:    row[2],
			Interval:  row[3],
		}
		for j, dst := range []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume} {
			v, err := strconv.ParseFloat(row[4+j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parse column %d: %w", i+2, 5+j, err)
			}
			*dst = v
		}
		klines = append(klines, k)
	}
	return klines, nil
}
