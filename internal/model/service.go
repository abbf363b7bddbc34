package model

// ServiceType prices are integer cents.
type ServiceType struct {
	Base
	Name              string `db:"name" json:"name"`
	DurationMinutes   int    `db:"duration_minutes" json:"duration_minutes"`
	Price             int64  `db:"price" json:"price"`
	InsuranceEligible bool   `db:"insurance_eligible" json:"insurance_eligible"`
	IsActive          bool   `db:"is_active" json:"is_active"`
}
