package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Date and time layouts used for slot keys
const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

// SlotStatus is derived from bookings and holds, it is never stored
type SlotStatus string

const (
	SlotStatusFree   SlotStatus = "free"
	SlotStatusHeld   SlotStatus = "held"
	SlotStatusBooked SlotStatus = "booked"
)

// SlotKey identifies a bookable unit of a doctor's calendar
type SlotKey struct {
	DoctorID uuid.UUID
	Date     string // YYYY-MM-DD
	Time     string // HH:MM
}

func NewSlotKey(doctorID uuid.UUID, date, clock string) SlotKey {
	return SlotKey{DoctorID: doctorID, Date: date, Time: clock}
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.DoctorID, k.Date, k.Time)
}

// StartsAt returns the slot start as an instant in loc
func (k SlotKey) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(SlotDateLayout+" "+SlotTimeLayout, k.Date+" "+k.Time, loc)
}

// Validate checks the date and time formats
func (k SlotKey) Validate() error {
	if _, err := time.Parse(SlotDateLayout, k.Date); err != nil {
		return fmt.Errorf("invalid slot date %q: %w", k.Date, err)
	}
	if _, err := time.Parse(SlotTimeLayout, k.Time); err != nil {
		return fmt.Errorf("invalid slot time %q: %w", k.Time, err)
	}
	return nil
}
