package models

// Product is the catalog collaborator's view of a bookable unit. The
// catalog service owns the full record and its moderation lifecycle; this
// service only needs enough to validate a booking request.
type Product struct {
	ProductID   string      `json:"product_id"`
	ProductType ProductType `json:"product_type"`
	Name        string      `json:"name"`
	PartnerID   string      `json:"partner_id"`
	Bookable    bool        `json:"bookable"`
	PricePerDay float64     `json:"price_per_day"`
	Currency    string      `json:"currency"`
}
