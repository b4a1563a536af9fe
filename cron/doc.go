// Package cron runs named maintenance tasks on cron schedules inside
// one process.
//
// Schedules use the standard five-field syntax or descriptors such as
// "@hourly" and "@every 30m". A task that is still running when its next
// tick arrives is skipped for that tick.
//
//	s := cron.NewScheduler(logger)
//	_ = s.Register("cleanup", "@hourly", func(ctx context.Context) error {
//	    _, err := svc.Cleanup(ctx, 24)
//	    return err
//	})
//	s.Start()
//	defer s.Stop(ctx)
package cron
