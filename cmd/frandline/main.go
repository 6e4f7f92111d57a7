package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frandline/frandline/internal/audioio"
	"github.com/frandline/frandline/internal/config"
	"github.com/frandline/frandline/internal/hook"
	"github.com/frandline/frandline/internal/phone"
	"github.com/frandline/frandline/internal/ring"
)

// defaultGPIOChip and the hook/bell line offsets match the original
// Raspberry Pi wiring (hook on the line rppal called pin 15); both are
// overridable so the same binary runs off-board against the signal/
// no-op fallbacks.
const (
	defaultGPIOChip   = "gpiochip0"
	defaultHookOffset = 15
	defaultBellOffset = 16
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	lev, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || lev == zerolog.NoLevel {
		lev = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger().Level(lev)

	if err := run(ctx, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("frandline exited with error")
	}
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	audioDev, err := openAudioWithRetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer audioDev.Close()

	hk := openHook(logger)
	defer hk.Close()

	bell := openBell(logger)
	defer bell.Close()

	ph, err := phone.New(cfg, audioDev, hk, bell, logger)
	if err != nil {
		return err
	}

	log.Info().Str("server", cfg.ServerHostPort()).Msg("starting frandline")
	err = ph.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// openAudioWithRetry retries opening the audio device with a 1s backoff
// indefinitely, per spec.md §7's hardware-absent policy: no mic means
// the phone cannot function, but that is treated as a condition to wait
// out rather than a fatal startup error.
func openAudioWithRetry(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*audioio.Device, error) {
	for {
		dev, err := audioio.Open(cfg, logger)
		if err == nil {
			return dev, nil
		}
		logger.Warn().Err(err).Msg("audio device unavailable, retrying")
		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func openHook(logger zerolog.Logger) *hook.Switch {
	chip := envOr("GPIO_CHIP", defaultGPIOChip)
	offset := envIntOr("HOOK_GPIO_OFFSET", defaultHookOffset)
	sw, err := hook.Open(chip, offset, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("no switch-hook GPIO line, falling back to SIGUSR1 toggle")
		return hook.OpenSignal(logger)
	}
	return sw
}

func openBell(logger zerolog.Logger) *ring.Bell {
	chip := envOr("GPIO_CHIP", defaultGPIOChip)
	offset := envIntOr("BELL_GPIO_OFFSET", defaultBellOffset)
	b, err := ring.Open(chip, offset, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("no bell GPIO line, falling back to no-op ringer")
		return ring.OpenNoop(logger)
	}
	return b
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
