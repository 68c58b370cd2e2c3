package db

const (
	// ledger row statuses
	PaymentStatusPaid   PaymentStatus = "Paid"
	PaymentStatusCancel PaymentStatus = "Cancel"
	// local schedule statuses
	ScheduleStatusScheduled ScheduleStatus = "SCHEDULED"
	ScheduleStatusStarted   ScheduleStatus = "STARTED"
	ScheduleStatusSucceeded ScheduleStatus = "SUCCEEDED"
	ScheduleStatusFailed    ScheduleStatus = "FAILED"
	ScheduleStatusRevoked   ScheduleStatus = "REVOKED"
	// magazine categories
	CategoryFrontend = "frontend"
	CategoryBackend  = "backend"
	CategoryDevOps   = "devops"
	CategoryAI       = "ai"
	CategoryMobile   = "mobile"
	CategoryEtc      = "etc"

	// DefaultMagazinesLimit is the number of magazines returned by a list
	// when no limit is given.
	DefaultMagazinesLimit = 10
)

// Categories is the list of valid magazine categories, in display order.
var Categories = []string{
	CategoryFrontend,
	CategoryBackend,
	CategoryDevOps,
	CategoryAI,
	CategoryMobile,
	CategoryEtc,
}

// CategoryNames maps every category to its display name.
var CategoryNames = map[string]string{
	CategoryFrontend: "Frontend",
	CategoryBackend:  "Backend",
	CategoryDevOps:   "DevOps",
	CategoryAI:       "AI",
	CategoryMobile:   "Mobile",
	CategoryEtc:      "기타",
}

// IsValidCategory checks if the category is one of Categories.
func IsValidCategory(category string) bool {
	_, ok := CategoryNames[category]
	return ok
}
