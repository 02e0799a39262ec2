package logsink

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("logsink",
	fx.Provide(
		NewClientMetrics,
		NewClient,
		NewIssueLog,
		func(c *Client) Emitter { return c },
	),
	fx.Invoke(registerFlush),
)

func registerFlush(lc fx.Lifecycle, c *Client, issues *IssueLog) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.Flush()
			issues.Close()
			return nil
		},
	})
}
