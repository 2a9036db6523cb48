package order_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/order"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/pay", order.MigrateURL("postgres://u:p@localhost:5432/pay"))
	require.Equal(t, "pgx5://localhost/pay", order.MigrateURL("postgresql://localhost/pay"))
	require.Equal(t, "pgx5://localhost/pay", order.MigrateURL("pgx5://localhost/pay"))
}
