package store

import (
	"context"
	"testing"

	"dealdesk/internal/domain/entity/deals"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDealRejectsSameOrderPair(t *testing.T) {
	r := &Repository{}

	err := r.CreateDeal(context.Background(), &deals.Deal{
		BuyOrderID:  5,
		SellOrderID: 5,
		Product:     "iPhone 15",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinct orders")
}

func TestCreateDealRejectsNil(t *testing.T) {
	r := &Repository{}
	assert.Error(t, r.CreateDeal(context.Background(), nil))
}
