package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
)

// StockLedger is the part of inventory.Ledger the stock commands drive.
type StockLedger interface {
	SetStock(ctx context.Context, productID string, size domain.Size, qty int) (domain.Product, error)
	ReserveProduct(ctx context.Context, productID string, qty int) (domain.Product, error)
}

// RootOptions holds global flags and the dependencies commands connect to.
type RootOptions struct {
	DSN    string
	Secret string

	Migrate func(ctx context.Context, dsn string) error
	Stock   func(ctx context.Context, dsn string) (StockLedger, func(), error)
}

func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	return newRoot(&RootOptions{
		DSN:     cfg.PostgresDSN,
		Secret:  cfg.GatewayKeySecret,
		Migrate: migrateDB,
		Stock:   connectLedger,
	})
}

func newRoot(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkoutctl",
		Short: "Operator tooling for the checkout service",
	}
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", opts.DSN, "PostgreSQL DSN (default $POSTGRES_DSN)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewSignCommand(opts))
	return cmd
}

func withPool(ctx context.Context, dsn string, fn func(*pgxpool.Pool) error) error {
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func migrateDB(ctx context.Context, dsn string) error {
	return withPool(ctx, dsn, func(db *pgxpool.Pool) error {
		return postgres.Migrate(ctx, db)
	})
}

func connectLedger(ctx context.Context, dsn string) (StockLedger, func(), error) {
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return inventory.NewLedger(postgres.NewStore(db), zap.NewNop()), db.Close, nil
}
