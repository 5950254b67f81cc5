package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkobrombin/go-seckill/v1/lock"
)

func lockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations",
	}
	cmd.AddCommand(lockTryCmd())
	return cmd
}

func lockTryCmd() *cobra.Command {
	var ttl, hold time.Duration
	cmd := &cobra.Command{
		Use:   "try [name]",
		Short: "Try to take a lock, hold it, then release it",
		Long: "Makes a single attempt to acquire the named lock. On success the lock is " +
			"held for --hold (or until interrupted) and then released.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateLockTTL("--ttl", ttl); err != nil {
				return err
			}
			client, err := openRedis(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := lock.NewCaller(cmd.Context())
			id, _ := lock.Identity(ctx)
			l := lock.NewRedis(args[0], client)
			ok, err := l.TryLock(ctx, ttl)
			if err != nil {
				return err
			}
			if !ok {
				cmd.Printf("%s: busy\n", l.Key())
				return nil
			}
			cmd.Printf("%s: acquired as %s for %s\n", l.Key(), id, ttl)
			select {
			case <-time.After(hold):
			case <-ctx.Done():
			}
			if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			cmd.Printf("%s: released\n", l.Key())
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*time.Second, "Lock time-to-live")
	cmd.Flags().DurationVar(&hold, "hold", 5*time.Second, "How long to hold the lock before releasing")
	return cmd
}
