// Package logger builds *slog.Logger instances with functional options and
// provides attribute helpers so field names stay consistent across packages.
//
// New selects a JSON or text handler and wraps it with a context-aware
// handler that runs registered ContextExtractor callbacks on every record.
// This is how request ids set by HTTP middleware reach log lines emitted deep
// inside the billing engine.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "billsync"),
//		logger.WithContextExtractors(logger.StringExtractor("request_id", middleware.GetReqID)),
//	)
//	log.InfoContext(ctx, "Processed webhook event", logger.EventID(id), logger.Error(err))
//
// Error and Reason return an empty slog.Attr for empty input, so they can be
// passed unconditionally.
package logger
