package db

import (
	"wagercourt/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Dispute{},
		&models.Evidence{},
		&models.Investigation{},
		&models.JurorVote{},
		&models.JurorRating{},
	)
}
