package availability

type BlockKind int

const (
	BlockOffHour BlockKind = iota + 1
	BlockBooking
)

func (k BlockKind) String() string {
	switch k {
	case BlockOffHour:
		return "off-hour"
	case BlockBooking:
		return "booking"
	default:
		return "unknown"
	}
}

type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonBookingConflict       Reason = "booking-conflict"
	ReasonOffHourConflict       Reason = "off-hour-conflict"
	ReasonOutsideOperatingHours Reason = "outside-operating-hours"
	ReasonUnknownDentist        Reason = "unknown-dentist"
)

// Block is an interval during which a dentist cannot be booked.
type Block struct {
	Interval
	Kind     BlockKind
	RecordID string
	// OwnerID is the dentist the record belongs to; empty for clinic-wide holidays.
	OwnerID     string
	Description string
}

type Verdict struct {
	Available bool
	Reason    Reason
	RecordID  string
}

func (b Block) reason() Reason {
	if b.Kind == BlockBooking {
		return ReasonBookingConflict
	}
	return ReasonOffHourConflict
}

// DetectConflict returns the verdict for the first block, in the given order, that
// overlaps candidate.
func DetectConflict(candidate Interval, blocking []Block) Verdict {
	for _, b := range blocking {
		if candidate.Overlaps(b.Interval) {
			return Verdict{Reason: b.reason(), RecordID: b.RecordID}
		}
	}
	return Verdict{Available: true}
}
