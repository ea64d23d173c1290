package entity

// DayAvailability is the read model served to booking clients for one date
type DayAvailability struct {
	Date        string   `json:"date"`
	TimeSlots   []string `json:"time_slots"`
	BookedSlots []string `json:"booked_slots"`
	HeldSlots   []string `json:"held_slots"`
	HeldByYou   []string `json:"held_by_you,omitempty"`
}

// StatusOf reports the derived status of clock on this day
func (d *DayAvailability) StatusOf(clock string) SlotStatus {
	for _, t := range d.BookedSlots {
		if t == clock {
			return SlotStatusBooked
		}
	}
	for _, t := range d.HeldSlots {
		if t == clock {
			return SlotStatusHeld
		}
	}
	for _, t := range d.HeldByYou {
		if t == clock {
			return SlotStatusHeld
		}
	}
	return SlotStatusFree
}
