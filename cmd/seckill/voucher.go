package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkobrombin/go-seckill/v1/adapter"
)

func voucherCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voucher",
		Short: "Manage seckill vouchers",
	}
	cmd.AddCommand(voucherAddCmd())
	return cmd
}

func voucherAddCmd() *cobra.Command {
	var (
		id       int64
		stock    int
		begin    string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a seckill voucher",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id <= 0 {
				return fmt.Errorf("--id must be positive")
			}
			if stock < 0 {
				return fmt.Errorf("--stock must not be negative")
			}
			start := time.Now()
			if begin != "" {
				var err error
				if start, err = time.Parse(time.RFC3339, begin); err != nil {
					return fmt.Errorf("--begin: %w", err)
				}
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			v := adapter.Voucher{VoucherID: id, Stock: stock, BeginTime: start, EndTime: start.Add(duration)}
			if err := store.SaveVoucher(ctx, v); err != nil {
				return err
			}
			cmd.Printf("voucher %d: stock %d, %s - %s\n", id, stock, v.BeginTime.Format(time.RFC3339), v.EndTime.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Voucher id")
	cmd.Flags().IntVar(&stock, "stock", 100, "Available stock")
	cmd.Flags().StringVar(&begin, "begin", "", "Sale start, RFC3339 (default now)")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "Sale duration")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
