package api

import (
	"time"

	"github.com/vibecoding/magazine-backend/checklist"
	"github.com/vibecoding/magazine-backend/subscriptions"
)

// MagazineRequest is the body of a new magazine. Tags are typed as a single
// space separated string. Category is checked first, so its message is the
// one reported when both required fields are missing.
type MagazineRequest struct {
	Category    string `json:"category" validate:"required,category"`
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"max=1000"`
	Content     string `json:"content"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,url,max=2048"`
	Tags        string `json:"tags" validate:"max=500"`
}

// MagazineCreatedResponse is returned when a magazine is created.
type MagazineCreatedResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// MagazineSummary is a magazine as shown in the lists, without its content.
type MagazineSummary struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MagazinesResponse is the list of magazines.
type MagazinesResponse struct {
	Magazines []MagazineSummary `json:"magazines"`
}

// SubscriptionStatusResponse is the subscription status of the user together
// with the steps followed to derive it.
type SubscriptionStatusResponse struct {
	*subscriptions.Status
	Checklist []checklist.Item `json:"checklist"`
}
