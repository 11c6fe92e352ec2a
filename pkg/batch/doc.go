// Package batch runs an operation over a list of items with bounded concurrency.
//
// Items are split into consecutive chunks of Config.Concurrency. The invocations of
// one chunk run concurrently; the next chunk starts only after every invocation of
// the current chunk has settled, and after Config.Delay has elapsed. The delay keeps
// bulk jobs under the CRM's request rate.
//
// Example usage:
//
//	cfg := batch.DefaultConfig()
//	cfg.ContinueOnError = true
//	cfg.OnProgress = func(done, total int) { fmt.Printf("%d/%d\n", done, total) }
//
//	res, err := batch.Run(ctx, leadIDs, func(ctx context.Context, id string, _ int) (*client.Response, error) {
//		return c.Lead.Delete(ctx, id)
//	}, cfg)
//
// With ContinueOnError the per-item failures are collected in Result.Failures.
// Without it the first failure aborts the run: the failing chunk's other
// invocations are awaited, no later chunk is started and Run returns an *ItemError.
package batch
