package service

import (
	"context"
	"fmt"

	"github.com/utafrali/discounts/internal/domain"
	apperrors "github.com/utafrali/discounts/pkg/errors"
)

// ProductPricing is the display price of a single product after item-level
// discounts. Discounts lists the campaigns that contributed.
type ProductPricing struct {
	ProductID     int64                   `json:"product_id"`
	OriginalPrice int64                   `json:"original_price"`
	FinalPrice    int64                   `json:"final_price"`
	TotalSavings  int64                   `json:"total_savings"`
	Discounts     []domain.DiscountResult `json:"discounts"`
}

// BestPrice computes the discounted display price for one unit of a product
// by running a single-item context through the product tier. CustomerID may
// be empty for anonymous browsing; customer-dependent campaigns then skip.
func (s *DiscountService) BestPrice(ctx context.Context, productID int64, price int64, customerID, customerType string) (*ProductPricing, error) {
	if price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}

	dctx := &domain.DiscountContext{
		CartTotal: price,
		Items: []domain.LineItem{
			{
				ProductID: productID,
				Quantity:  1,
				UnitPrice: price,
				LineTotal: price,
			},
		},
		CustomerID:   customerID,
		CustomerType: customerType,
	}

	app, err := s.ApplyDiscounts(ctx, dctx, domain.ScopeProducts)
	if err != nil {
		return nil, fmt.Errorf("price product %d: %w", productID, err)
	}

	return &ProductPricing{
		ProductID:     productID,
		OriginalPrice: price,
		FinalPrice:    price - app.TotalSavings,
		TotalSavings:  app.TotalSavings,
		Discounts:     app.Results,
	}, nil
}
