package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchRates loads rates.yaml, hands it to onUpdate and then polls the file,
// calling onUpdate again after each change that still validates. Invalid edits
// are logged and the previous rates stay in effect.
func WatchRates(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*RatesConfig)) error {
	if path == "" {
		path = "configs/rates.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadRatesConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := LoadRatesConfig(path)
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("rates reload rejected")
					continue
				}
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
