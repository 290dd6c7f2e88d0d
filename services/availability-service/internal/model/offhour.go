package model

import "time"

// OffHour is a dentist's personal unavailability or, with AllDentists set, a clinic-wide holiday.
type OffHour struct {
	ID          string    `json:"id"`
	DentistID   string    `json:"dentist_id,omitempty"`
	AllDentists bool      `json:"all_dentists"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
}

// AppliesTo reports whether the off-hour blocks dentistID.
func (o OffHour) AppliesTo(dentistID string) bool {
	return o.AllDentists || (o.DentistID != "" && o.DentistID == dentistID)
}
