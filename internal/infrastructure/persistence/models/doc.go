// Package models contains the gorm row types for the orders, wishlists and
// security_logs tables, kept apart from the domain types they map to.
//
// Each model has a ToDomain method and a <Model>FromDomain constructor.
// Nullable text columns are *string here and plain strings in the domain.
package models
