package models

import "gorm.io/gorm"

// Migrate creates the schema plus the partial unique indexes that back the
// lending invariants at the storage level: at most one active loan per copy,
// at most one open request per (copy, reader). The conditional writes in the
// engines are the gate; these indexes make a bug loud instead of silent.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Reader{},
		&Title{},
		&Copy{},
		&LoanRecord{},
		&ReservationRequest{},
		&Notification{},
	); err != nil {
		return err
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_loan
			ON loan_records (copy_id) WHERE status IN ('ACTIVE','OVERDUE')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_request
			ON reservation_requests (copy_id, reader_id) WHERE status IN ('PENDING','NOTIFIED')`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
