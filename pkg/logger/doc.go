// Package logger builds slog loggers and keeps attribute names consistent.
//
// New creates a *slog.Logger from functional options; NewFromConfig does the
// same from environment variables (APP_ENV, SERVICE_NAME, LOG_LEVEL, LOG_FORMAT).
// The handler is wrapped in LogHandlerDecorator, which adds attributes taken
// from the context of each call, such as the HTTP request id.
//
//	log := logger.New(
//		logger.WithEnvironment(logger.EnvProduction, "commhub"),
//		logger.WithContextExtractors(logger.ContextValue("request_id", requestIDKey)),
//	)
//	log.LogAttrs(ctx, slog.LevelInfo, "message released",
//		logger.MessageID(msg.ID),
//		logger.Channel(messaging.ChannelEmail),
//	)
//
// Attribute helpers such as Error, MessageID or JobID return an empty
// attribute for nil or empty values, so they can be passed unconditionally.
package logger
