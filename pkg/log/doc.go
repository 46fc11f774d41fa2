// Package log is the structured logging facade used by every listsync
// component.
//
// Loggers are leveled and carry structured Fields. Records flow through a
// slog.Handler bridge into a Formatter (JSON or text) and one or more
// Outputs, so libraries that accept a *slog.Logger can share the pipeline.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("lanes"), log.Str(log.ListIDKey, id))
//	l.Info("command applied", log.Str("type", "createItem"))
//
// ApplyConfig builds a logger from a declarative Config. RedirectStdLog routes
// the standard library logger through a facade logger.
package log
