package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/validation"
)

// ListingService — услуги, которые студенты выставляют на площадку.
type ListingService struct {
	store Store
	clock Clock
}

func NewListingService(store Store) *ListingService {
	return &ListingService{store: store, clock: systemClock}
}

// WithClock подменяет источник времени.
func (s *ListingService) WithClock(clock Clock) *ListingService {
	s.clock = clock
	return s
}

type CreateServiceInput struct {
	Title        string          `json:"title" validate:"notblank,max=200"`
	Description  string          `json:"description" validate:"notblank,max=10000"`
	Price        decimal.Decimal `json:"price"`
	DeliveryDays int             `json:"delivery_days" validate:"required,min=1,max=90"`
}

// CreateService публикует услугу студента. Заблокированный студент
// новые услуги создавать не может.
func (s *ListingService) CreateService(ctx context.Context, studentID uuid.UUID, input CreateServiceInput) (*models.Listing, error) {
	student, err := loadActor(ctx, s.store.Users(), studentID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.ActionCreateListing, student, nil); err != nil {
		return nil, err
	}
	now := s.clock()
	if err := policy.CheckSuspension(student, now, policy.SubjectSelf); err != nil {
		return nil, err
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	price, err := valueobject.NewPrice(input.Price)
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		ID:           uuid.New(),
		StudentID:    studentID,
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Price:        price,
		DeliveryDays: input.DeliveryDays,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Listings().Create(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *ListingService) GetService(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.store.Listings().GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return listing, nil
}

// DeactivateService снимает услугу с витрины. Доступно владельцу и администратору.
func (s *ListingService) DeactivateService(ctx context.Context, actorID, id uuid.UUID) (*models.Listing, error) {
	actor, err := loadActor(ctx, s.store.Users(), actorID)
	if err != nil {
		return nil, err
	}
	listing, err := s.store.Listings().GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if listing.StudentID != actorID && actor.Role != valueobject.RoleAdmin {
		return nil, apperror.Authorization("only the owner or an admin can deactivate this service")
	}

	now := s.clock()
	if err := s.store.Listings().SetActive(ctx, id, false, now); err != nil {
		return nil, translate(err)
	}
	listing.IsActive = false
	listing.UpdatedAt = now
	return listing, nil
}
