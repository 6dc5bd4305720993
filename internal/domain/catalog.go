package domain

import "time"

// CatalogEntry is a product as reported by a connector's GetProducts.
type CatalogEntry struct {
	ExternalID string                 `json:"externalId"`
	Title      string                 `json:"title"`
	Price      float64                `json:"price"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Fields returns the entry in canonical payload form.
func (c CatalogEntry) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"title": c.Title,
		"price": c.Price,
	}
	if len(c.Attributes) > 0 {
		fields["attributes"] = c.Attributes
	}
	return fields
}
