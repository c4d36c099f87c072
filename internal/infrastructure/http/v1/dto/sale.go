package dto

import (
	"stocktally/internal/core/types"
)

// CreateSaleRequest opens a draft sale (cart) at a storefront.
type CreateSaleRequest struct {
	StorefrontID string `json:"storefrontId" binding:"required,uuid"`
}

// AddSaleLineRequest adds a product to a draft sale. The service places the
// matching reservation in the same transaction.
type AddSaleLineRequest struct {
	ProductID string         `json:"productId" binding:"required,uuid"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	UnitPrice types.Money    `json:"unitPrice"`
}
