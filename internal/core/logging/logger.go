package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component creates a new logger with a component identifier, derived from
// the global logger. Uses the "cmp" key for consistency with zerolog
// conventions and attaches ContextHook so upload/artifact context flows
// into every event logged with Ctx.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger().Hook(ContextHook{})
}
