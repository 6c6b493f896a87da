package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"ms-storefront/internal/catalog"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// TestPostgresIntegration runs the paid path against a real Postgres container
func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	defer pg.Terminate(ctx)

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	require.NoError(t, db.CreateTables(ctx, bunDB))
	require.NoError(t, catalog.CreateTables(ctx, bunDB))
	_, err = bunDB.NewCreateTable().Model((*models.Address)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)

	product := &models.Product{
		Name:     "Desk Lamp",
		Price:    decimal.NewFromInt(50),
		OldPrice: decimal.NewFromInt(60),
		Stock:    1,
		Status:   models.ProductPublished,
	}
	_, err = bunDB.NewInsert().Model(product).Exec(ctx)
	require.NoError(t, err)

	ledger := &db.DB{Bun: bunDB}
	catalogDB := &catalog.DB{Bun: bunDB}
	order, _ := seedOrder(t, ledger, "ORD-2026-PG000001", "user-1")

	// paid + stock decrement commit together
	err = ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := ledger.UpdateOrderStatus(ctx, tx, order.OrderNumber, models.OrderPaid, ""); err != nil {
			return err
		}
		return catalogDB.DecreaseStock(ctx, tx, product.SKU, 1)
	})
	require.NoError(t, err)

	// a second decrement fails and rolls the whole transaction back
	err = ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := ledger.UpdateOrderStatus(ctx, tx, order.OrderNumber, models.OrderShipped, ""); err != nil {
			return err
		}
		return catalogDB.DecreaseStock(ctx, tx, product.SKU, 1)
	})
	var insufficient *catalog.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	got, err := ledger.GetOrderByNumber(ctx, nil, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)

	item, err := catalogDB.GetBySKU(ctx, product.SKU)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Stock())
}
