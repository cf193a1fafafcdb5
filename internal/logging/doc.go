// Package logging provides structured logging for the crawler.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (trace_id, run id, repository)
//   - Secret redaction for credential fields (GitHub password and token)
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithRepository(ctx, repo.ID, repo.URL)
//	logger.Warn(ctx, "repository failed", zap.Error(err))
//
// Output includes the correlation fields:
//
//	{"level":"warn","msg":"repository failed","run.id":"3f1c...","repo.github_id":42,"repo.url":"https://github.com/a/b.git","error":"..."}
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	crawler := crawler.New(cfg, crawler.Deps{Logger: tl.Logger, ...})
//	tl.AssertLogged(t, zapcore.WarnLevel, "repository failed")
//	tl.AssertNoSecrets(t)
package logging
