package tables

import "github.com/JonMunkholm/mapexport/internal/core"

func init() {
	registerOrders()
	registerProducts()
}

func registerOrders() {
	core.Register(core.TargetSchema{
		Key:         "orders",
		Group:       "Commerce",
		Label:       "Orders",
		Description: "Order lines for a storefront import",
		Columns: []core.TargetColumn{
			{Name: "Order Number", Required: true},
			{Name: "Order Date", Required: true, Description: "YYYY-MM-DD"},
			{Name: "Customer Email"},
			{Name: "SKU", Required: true},
			{Name: "Quantity", Required: true},
			{Name: "Unit Price"},
			{Name: "Currency"},
			{Name: "Ship State"},
		},
	})
}

func registerProducts() {
	core.Register(core.TargetSchema{
		Key:   "products",
		Group: "Commerce",
		Label: "Products",
		Columns: []core.TargetColumn{
			{Name: "SKU", Required: true},
			{Name: "Name", Required: true},
			{Name: "Description"},
			{Name: "Price"},
			{Name: "Stock"},
			{Name: "Active"},
		},
	})
}
