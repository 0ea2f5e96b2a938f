package models

import "github.com/google/uuid"

// Address is a delivery destination in a buyer's address book. Latitude and
// longitude are optional; when absent the pricing engine falls back to the
// default delivery fee.
type Address struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Label       string    `json:"label"`
	AddressLine string    `json:"address_line"`
	Landmark    string    `json:"landmark"`
	City        string    `json:"city"`
	Pincode     string    `json:"pincode"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	IsDefault   bool      `json:"is_default"`
}

// Shop is the minimal butcher-shop record the pricing engine needs: a name
// and the coordinates delivery distance is measured from.
type Shop struct {
	BaseModel
	Name      string  `json:"name"`
	AreaName  string  `json:"area_name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsActive  bool    `json:"is_active"`
}
