package model

import "time"

// Name is a party record: a customer, supplier, or another store.
type Name struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	IsCustomer bool   `json:"is_customer"`
	IsSupplier bool   `json:"is_supplier"`
	IsStore    bool   `json:"is_store"`
}

// NameLink resolves a possibly merged party id to its current id. When two
// parties are merged the old id keeps a link row pointing at the survivor.
type NameLink struct {
	ID     string `json:"id"`
	NameID string `json:"name_id"`
}

// Store is an operating site's selling/receiving unit. SiteID identifies the
// sync endpoint that owns the store's records. CreatedDate is nil for stores
// predating the legacy server recording it.
type Store struct {
	ID          string     `json:"id"`
	NameID      string     `json:"name_id"`
	Code        string     `json:"code"`
	SiteID      int32      `json:"site_id"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
}

// User is the minimal user row kept for referential integrity. Placeholder
// rows are inserted during sync when a record references an unknown user and
// are overwritten when the real record arrives.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Placeholder bool   `json:"placeholder"`
}
