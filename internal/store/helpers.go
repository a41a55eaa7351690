package store

import (
	"database/sql"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/models"
)

// boolToInt maps Go bools onto SQLite's 0/1 integer columns.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanSlotRow scans an AvailabilitySlot from a single sql.Row.
func scanSlotRow(row *sql.Row) (models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	var available int
	var reservedBy sql.NullInt64
	err := row.Scan(&slot.DoctorID, &slot.DoctorName, &slot.Specialization, &slot.Timestamp, &available, &reservedBy)
	if err != nil {
		return slot, err
	}
	slot.IsAvailable = available != 0
	if reservedBy.Valid {
		pid := int(reservedBy.Int64)
		slot.ReservedBy = &pid
	}
	return slot, nil
}

// scanSlots scans all AvailabilitySlot rows from a query result.
func scanSlots(rows *sql.Rows) ([]models.AvailabilitySlot, error) {
	var slots []models.AvailabilitySlot
	for rows.Next() {
		var slot models.AvailabilitySlot
		var available int
		var reservedBy sql.NullInt64
		if err := rows.Scan(&slot.DoctorID, &slot.DoctorName, &slot.Specialization, &slot.Timestamp, &available, &reservedBy); err != nil {
			return nil, fmt.Errorf("scan slot failed: %w", err)
		}
		slot.IsAvailable = available != 0
		if reservedBy.Valid {
			pid := int(reservedBy.Int64)
			slot.ReservedBy = &pid
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slot rows failed: %w", err)
	}
	return slots, nil
}
