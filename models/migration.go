package models

import (
	"log"

	"github.com/grupofarma/pharma_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Client{}, &SalesPerson{}, &Prescriber{},
		&Sale{},
		&SyncWatermark{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
