package intake

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/retailops-backend/internal/catalog"
	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/pkg/db/dbtest"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

func newIntake(t *testing.T) (*Intake, models.ProductVariant) {
	t.Helper()
	client := dbtest.New(t)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(client.DB()))
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(client.DB()),
		DB:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), nil),
	})
	require.NoError(t, err)

	ctx := context.Background()
	barcode := "8690000000017"
	variant, err := catalogSvc.CreateVariant(ctx, catalog.CreateVariantInput{SKU: "MUG-01", Name: "Mug", Barcode: &barcode})
	require.NoError(t, err)
	_, err = catalogSvc.CreateLocation(ctx, catalog.CreateLocationInput{Code: "WEB", Name: "Web warehouse"})
	require.NoError(t, err)

	in, err := New(catalogSvc, orderSvc, "web")
	require.NoError(t, err)
	return in, *variant
}

func TestCreateMatchesBySKUThenBarcode(t *testing.T) {
	in, variant := newIntake(t)
	ctx := context.Background()

	result, err := in.Create(ctx, Order{
		Channel:    enums.ChannelTrendyol,
		ExternalID: "10001",
		Currency:   "TRY",
		Lines: []Line{
			{SKU: "MUG-01", Quantity: 1, UnitPrice: "129,90"},
			{SKU: "renamed", Barcode: "8690000000017", Quantity: 2, UnitPrice: "99.5"},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.Len(t, result.Order.Items, 2)
	for _, item := range result.Order.Items {
		require.Equal(t, variant.ID, item.VariantID)
	}
	require.True(t, decimal.RequireFromString("328.90").Equal(result.Order.TotalAmount))

	again, err := in.Create(ctx, Order{Channel: enums.ChannelTrendyol, ExternalID: "10001", Currency: "TRY", Lines: []Line{{SKU: "MUG-01", Quantity: 1, UnitPrice: "1"}}})
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, result.Order.ID, again.Order.ID)
}

func TestCreateRejectsUnknownLines(t *testing.T) {
	in, _ := newIntake(t)
	ctx := context.Background()

	_, err := in.Create(ctx, Order{
		Channel:    enums.ChannelShopify,
		ExternalID: "55",
		Currency:   "USD",
		Lines:      []Line{{SKU: "NOPE", Quantity: 1, UnitPrice: "1"}},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = in.Create(ctx, Order{
		Channel:    enums.ChannelShopify,
		ExternalID: "56",
		Currency:   "USD",
		Lines:      []Line{{SKU: "MUG-01", Quantity: 1, UnitPrice: "free"}},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCancelByExternalID(t *testing.T) {
	in, _ := newIntake(t)
	ctx := context.Background()

	_, err := in.Cancel(ctx, enums.ChannelShopify, "404", "customer")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = in.Create(ctx, Order{Channel: enums.ChannelShopify, ExternalID: "77", Currency: "USD", Lines: []Line{{SKU: "MUG-01", Quantity: 1, UnitPrice: "10.00"}}})
	require.NoError(t, err)
	canceled, err := in.Cancel(ctx, enums.ChannelShopify, "77", "customer")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCanceled, canceled.Status)
}
