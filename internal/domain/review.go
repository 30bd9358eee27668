package domain

import (
	"strings"
	"time"
)

type Review struct {
	ID        string    `json:"id"`
	Review    string    `json:"review"`
	Rating    float64   `json:"rating"`
	TourID    string    `json:"tour"`
	UserID    string    `json:"-"`
	User      *UserInfo `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateReviewRequest struct {
	Review string  `json:"review" validate:"required"`
	Rating float64 `json:"rating" validate:"required,gte=1,lte=5"`
	TourID string  `json:"tour" validate:"required"`
	UserID string  `json:"user,omitempty"`
}

type UpdateReviewRequest struct {
	Review *string  `json:"review,omitempty" validate:"omitempty,min=1"`
	Rating *float64 `json:"rating,omitempty" validate:"omitempty,gte=1,lte=5"`
}

func (r *CreateReviewRequest) Normalize() {
	r.Review = strings.TrimSpace(r.Review)
	r.TourID = strings.TrimSpace(r.TourID)
}

func (r *UpdateReviewRequest) Normalize() {
	if r.Review != nil {
		text := strings.TrimSpace(*r.Review)
		r.Review = &text
	}
}

func (r *UpdateReviewRequest) Empty() bool {
	return r.Review == nil && r.Rating == nil
}
