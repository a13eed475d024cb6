package models

import (
	"log"

	"github.com/veltashop/shieldsync_backend/config"
)

// MigrateTable keeps the sync-service-owned tables in shape. Order rows are
// owned by the storefront; AutoMigrate only adds what is missing.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Order{},
		&OrderItem{},
		&OrderMeta{},
		&OrderNote{},
		&Setting{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
