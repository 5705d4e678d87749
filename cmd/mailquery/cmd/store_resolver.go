package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wesm/mailquery/internal/audit"
	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/imap"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
)

// envIMAPPassword supplies the IMAP password without a stored credential.
const envIMAPPassword = "MAILQUERY_IMAP_PASSWORD"

// openStore builds the configured mail store, throttled when
// store.requests_per_second is set. The returned func releases it.
func openStore() (mailstore.Store, func(), error) {
	var (
		s       mailstore.Store
		closeFn = func() {}
	)
	switch cfg.Store.Backend {
	case config.BackendIMAP:
		imapCfg := imap.FromConfig(cfg)
		password, err := imapPassword(imapCfg)
		if err != nil {
			return nil, nil, err
		}
		is := imap.New(imapCfg, password, imap.WithLogger(logger))
		s = is
		closeFn = func() {
			if err := is.Close(); err != nil {
				logger.Debug("close IMAP connection", "error", err)
			}
		}
	default:
		s = mailstore.NewSampleStore(time.Now())
	}
	return mailstore.Throttled(s, mailstore.NewLimiter(cfg.Store.RequestsPerSecond)), closeFn, nil
}

// imapPassword reads the password from the environment or the stored
// credentials.
func imapPassword(c *imap.Config) (string, error) {
	if pw, ok := os.LookupEnv(envIMAPPassword); ok {
		return pw, nil
	}
	pw, err := imap.LoadCredentials(cfg.TokensDir(), c.Identifier())
	if err != nil {
		return "", fmt.Errorf("IMAP password: %w", err)
	}
	return pw, nil
}

// newEngine creates a query engine enforcing the configured limits.
func newEngine(s mailstore.Store) *query.Engine {
	monitor := governor.NewMonitor(cfg.GovernorLimits(), governor.WithMonitorLogger(logger))
	return query.NewEngine(s, query.WithLogger(logger), query.WithMonitor(monitor))
}

// openAudit returns the audit recorder: a SQLite store when auditing is
// enabled, else a no-op. Failing to open the trail only disables it.
func openAudit() (audit.Recorder, func()) {
	if !cfg.Audit.Enabled {
		return audit.Nop{}, func() {}
	}
	st, err := audit.Open(cfg.AuditPath())
	if err != nil {
		logger.Warn("audit trail disabled", "path", cfg.AuditPath(), "error", err)
		return audit.Nop{}, func() {}
	}
	return st, func() { _ = st.Close() }
}

// cliUser names the local user in audit entries.
func cliUser() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

// retryPolicy returns the connection retry policy from [connection].
func retryPolicy() *governor.RetryPolicy {
	p := governor.NewRetryPolicy(cfg.Connection.MaxRetries, cfg.RetryDelay())
	p.Logger = logger
	return p
}

// guarded runs fn under the operation's timeout and the connection retry
// policy.
func guarded[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	policy := cfg.GovernorTimeouts().Policy(op)
	return governor.Retry(ctx, retryPolicy(), func(ctx context.Context) (T, error) {
		return governor.RunValue(ctx, policy, fn)
	})
}
