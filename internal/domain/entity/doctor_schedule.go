package entity

import (
	"time"

	"github.com/google/uuid"
)

// Consultation types offered by a schedule
const (
	ConsultationOffline = "offline"
	ConsultationOnline  = "online"
)

// DefaultSlotMinutes is used when a schedule does not specify a slot length
const DefaultSlotMinutes = 30

// DoctorSchedule is a block of working hours on one date, split into
// fixed-length slots starting at StartTime.
type DoctorSchedule struct {
	ID               int       `gorm:"primaryKey;autoIncrement" json:"id"`
	DoctorID         uuid.UUID `gorm:"type:uuid;not null;index" json:"doctor_id"`
	ScheduleDate     time.Time `gorm:"type:date;not null;index" json:"schedule_date"`
	StartTime        string    `gorm:"type:varchar(5);not null" json:"start_time"`
	EndTime          string    `gorm:"type:varchar(5);not null" json:"end_time"`
	SlotMinutes      int       `gorm:"not null;default:30" json:"slot_minutes"`
	ConsultationType string    `gorm:"type:varchar(20);not null;default:'offline'" json:"consultation_type"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Doctor DoctorProfile `gorm:"foreignKey:DoctorID;references:UserID" json:"doctor,omitempty"`
}

func (DoctorSchedule) TableName() string {
	return "doctor_schedules"
}

// TimeSlots returns the HH:MM start of every slot in the schedule.
// A trailing fragment shorter than SlotMinutes is not offered.
func (s *DoctorSchedule) TimeSlots() []string {
	minutes := s.SlotMinutes
	if minutes <= 0 {
		minutes = DefaultSlotMinutes
	}

	start, err := time.Parse(SlotTimeLayout, s.StartTime)
	if err != nil {
		return nil
	}
	end, err := time.Parse(SlotTimeLayout, s.EndTime)
	if err != nil {
		return nil
	}

	step := time.Duration(minutes) * time.Minute
	var slots []string
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		slots = append(slots, t.Format(SlotTimeLayout))
	}
	return slots
}

// Offers reports whether clock ("HH:MM") is the start of one of the slots
func (s *DoctorSchedule) Offers(clock string) bool {
	for _, slot := range s.TimeSlots() {
		if slot == clock {
			return true
		}
	}
	return false
}
