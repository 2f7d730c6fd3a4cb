package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const restartPause = 5 * time.Second

// Forever keeps fn running until ctx is cancelled: a panic or return is
// logged and fn is restarted after a short pause. Used to supervise the
// sweeper, which must always be running while the process is up.
func Forever(ctx context.Context, log zerolog.Logger, name string, fn func(context.Context)) {
	forever(ctx, log, name, restartPause, fn)
}

func forever(ctx context.Context, log zerolog.Logger, name string, pause time.Duration, fn func(context.Context)) {
	for {
		runRecovered(log, name, func() { fn(ctx) })
		if !sleep(ctx, pause) {
			return
		}
		log.Warn().Str("task", name).Msg("restarting background task")
	}
}

func runRecovered(log zerolog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", name).Interface("panic", r).Msg("background task panicked")
		}
	}()
	fn()
}
