package domain

import (
	"math"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// DefaultRatingsAverage is the baseline a tour shows when it has no reviews.
const DefaultRatingsAverage = 4.5

const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

type Tour struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Duration        int       `json:"duration"`
	MaxGroupSize    int       `json:"maxGroupSize"`
	Difficulty      string    `json:"difficulty"`
	Price           float64   `json:"price"`
	Summary         string    `json:"summary"`
	ImageCover      string    `json:"imageCover"`
	RatingsAverage  float64   `json:"ratingsAverage"`
	RatingsQuantity int       `json:"ratingsQuantity"`
	CreatedAt       time.Time `json:"createdAt"`
}

type CreateTourRequest struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name" validate:"required,min=10,max=40"`
	Duration     int     `json:"duration" validate:"required,gte=1"`
	MaxGroupSize int     `json:"maxGroupSize" validate:"required,gte=1"`
	Difficulty   string  `json:"difficulty" validate:"required,oneof=easy medium difficult"`
	Price        float64 `json:"price" validate:"required,gt=0"`
	Summary      string  `json:"summary" validate:"required"`
	ImageCover   string  `json:"imageCover" validate:"required"`
}

func (r *CreateTourRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Summary = strings.TrimSpace(r.Summary)
}

// ToTour builds a new tour with a slug and the no-review rating baseline.
func (r *CreateTourRequest) ToTour(now time.Time) *Tour {
	return &Tour{
		ID:              r.ID,
		Name:            r.Name,
		Slug:            slug.Make(r.Name),
		Duration:        r.Duration,
		MaxGroupSize:    r.MaxGroupSize,
		Difficulty:      r.Difficulty,
		Price:           r.Price,
		Summary:         r.Summary,
		ImageCover:      r.ImageCover,
		RatingsAverage:  DefaultRatingsAverage,
		RatingsQuantity: 0,
		CreatedAt:       now,
	}
}

// RatingStats is the raw count and mean of the ratings pointing at a tour.
type RatingStats struct {
	Count   int
	Average float64
}

// TourRatings are the denormalized aggregate fields written back to a tour.
type TourRatings struct {
	Quantity int     `json:"ratingsQuantity"`
	Average  float64 `json:"ratingsAverage"`
}

// RatingsFromStats maps scan results to the stored aggregate.
func RatingsFromStats(s RatingStats) TourRatings {
	if s.Count <= 0 {
		return TourRatings{Quantity: 0, Average: DefaultRatingsAverage}
	}
	return TourRatings{Quantity: s.Count, Average: RoundRating(s.Average)}
}

// RoundRating rounds to one decimal place, 4.666 -> 4.7.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
