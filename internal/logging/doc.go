// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and/or OpenTelemetry output through the otelzap bridge
//   - automatic context fields (trace_id, span_id, tenant, request.id)
//   - field-name and pattern based secret redaction
//   - level-aware sampling where errors are never dropped
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTenant(ctx, "acme")
//	logger.Info(ctx, "answer generated", zap.Int("sources", 4))
//
// Tests use NewTestLogger, which records every entry through a zaptest
// observer:
//
//	tl := logging.NewTestLogger()
//	svc := rag.NewService(retriever, synth, tl.Logger)
//	...
//	tl.AssertLogged(t, zapcore.InfoLevel, "fallback answer")
package logging
