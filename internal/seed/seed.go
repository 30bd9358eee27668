// Package seed loads and clears development fixtures.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/pkg/logger"
)

const (
	toursFile   = "tours.json"
	usersFile   = "users.json"
	reviewsFile = "reviews.json"
)

// Recomputer refreshes a tour's rating aggregate after reviews are loaded.
type Recomputer interface {
	Recompute(ctx context.Context, tourID string) (domain.TourRatings, error)
}

type tourFixture struct {
	ID           string  `json:"_id"`
	Name         string  `json:"name"`
	Duration     int     `json:"duration"`
	MaxGroupSize int     `json:"maxGroupSize"`
	Difficulty   string  `json:"difficulty"`
	Price        float64 `json:"price"`
	Summary      string  `json:"summary"`
	ImageCover   string  `json:"imageCover"`
}

// Users in fixtures carry an already hashed password.
type userFixture struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Photo    string `json:"photo"`
	Active   *bool  `json:"active"`
	Password string `json:"password"`
}

type reviewFixture struct {
	ID     string  `json:"_id"`
	Review string  `json:"review"`
	Rating float64 `json:"rating"`
	Tour   string  `json:"tour"`
	User   string  `json:"user"`
}

type Summary struct {
	Tours   int
	Users   int
	Reviews int
}

// Import reads tours, users and reviews from dir, then recomputes every
// imported tour's ratings.
func Import(ctx context.Context, stores repo.Stores, ratings Recomputer, dir string) (Summary, error) {
	var (
		sum     Summary
		tours   []tourFixture
		users   []userFixture
		reviews []reviewFixture
	)
	if err := readFixture(dir, toursFile, &tours); err != nil {
		return sum, err
	}
	if err := readFixture(dir, usersFile, &users); err != nil {
		return sum, err
	}
	if err := readFixture(dir, reviewsFile, &reviews); err != nil {
		return sum, err
	}

	now := time.Now()
	tourIDs := make([]string, 0, len(tours))
	for _, f := range tours {
		t, err := stores.Tours.Create(ctx, &domain.Tour{
			ID:              f.ID,
			Name:            f.Name,
			Slug:            slug.Make(f.Name),
			Duration:        f.Duration,
			MaxGroupSize:    f.MaxGroupSize,
			Difficulty:      f.Difficulty,
			Price:           f.Price,
			Summary:         f.Summary,
			ImageCover:      f.ImageCover,
			RatingsAverage:  domain.DefaultRatingsAverage,
			RatingsQuantity: 0,
			CreatedAt:       now,
		})
		if err != nil {
			return sum, fmt.Errorf("tour %q: %w", f.Name, err)
		}
		tourIDs = append(tourIDs, t.ID)
		sum.Tours++
	}

	for _, f := range users {
		u := &domain.User{
			ID:           f.ID,
			Name:         f.Name,
			Email:        f.Email,
			Role:         f.Role,
			Photo:        f.Photo,
			PasswordHash: f.Password,
			Active:       f.Active == nil || *f.Active,
			CreatedAt:    now,
		}
		if u.Role == "" {
			u.Role = domain.RoleUser
		}
		if !domain.IsValidRole(u.Role) {
			return sum, fmt.Errorf("user %q: unknown role %q: %w", f.Email, u.Role, domain.ErrValidation)
		}
		if u.Photo == "" {
			u.Photo = domain.DefaultPhoto
		}
		if _, err := stores.Users.Create(ctx, u); err != nil {
			return sum, fmt.Errorf("user %q: %w", f.Email, err)
		}
		sum.Users++
	}

	for _, f := range reviews {
		if _, err := stores.Reviews.Create(ctx, &domain.Review{
			ID:        f.ID,
			Review:    f.Review,
			Rating:    f.Rating,
			TourID:    f.Tour,
			UserID:    f.User,
			CreatedAt: now,
		}); err != nil {
			return sum, fmt.Errorf("review %s: %w", f.ID, err)
		}
		sum.Reviews++
	}

	for _, id := range tourIDs {
		if _, err := ratings.Recompute(ctx, id); err != nil {
			return sum, fmt.Errorf("recompute %s: %w", id, err)
		}
	}
	logger.Info("Data successfully loaded", "tours", sum.Tours, "users", sum.Users, "reviews", sum.Reviews)
	return sum, nil
}

// Delete removes all tours, reviews and users. Bookings are left alone.
func Delete(ctx context.Context, stores repo.Stores) error {
	if err := stores.Tours.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete tours: %w", err)
	}
	if err := stores.Reviews.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete reviews: %w", err)
	}
	if err := stores.Users.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete users: %w", err)
	}
	logger.Info("Data successfully deleted")
	return nil
}

func readFixture(dir, name string, v any) error {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
