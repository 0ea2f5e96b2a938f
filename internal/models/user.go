package models

// User represents an authenticated buyer.
type User struct {
	BaseModel
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `gorm:"uniqueIndex" json:"phone"`
	PasswordHash string    `json:"-"`
	Addresses    []Address `json:"addresses,omitempty"`
	Orders       []Order   `json:"orders,omitempty"`
}
