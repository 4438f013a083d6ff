package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/audit"
	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/util"
)

type DriverService struct {
	driverRepo repository.DriverRepository
	locker     Locker
}

func NewDriverService(driverRepo repository.DriverRepository, locker Locker) *DriverService {
	return &DriverService{
		driverRepo: driverRepo,
		locker:     locker,
	}
}

// Login registers the driver on first use and otherwise checks that the
// name matches the one on record. It never starts a session.
func (s *DriverService) Login(ctx context.Context, driverID, driverName string) (*model.Driver, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}
	name := strings.TrimSpace(driverName)
	if name == "" {
		return nil, apperrors.MissingRequired("driverName")
	}

	unlock, err := s.locker.LockContext(ctx, "driver:"+driverID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConflict, "driver registration in progress", err)
	}
	defer unlock()

	existing, err := s.driverRepo.FindByID(ctx, driverID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find driver: %w", err))
	}

	if existing != nil {
		if !strings.EqualFold(existing.Name, name) {
			audit.Log(ctx, audit.Event{
				Type:     audit.EventDriverNameClash,
				DriverID: driverID,
				Details:  map[string]interface{}{"attemptedName": name},
			})
			return nil, apperrors.Conflict("driver ID is registered under a different name")
		}
		return existing, nil
	}

	driver, err := s.driverRepo.Upsert(ctx, model.UpsertDriverParams{ID: driverID, Name: name})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create driver: %w", err))
	}

	audit.Log(ctx, audit.Event{Type: audit.EventDriverRegistered, DriverID: driverID})
	log.Info().
		Str("driverId", driverID).
		Msg("driver registered")

	return driver, nil
}

func (s *DriverService) List(ctx context.Context) ([]model.Driver, error) {
	drivers, err := s.driverRepo.FindAll(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list drivers: %w", err))
	}
	return drivers, nil
}

func (s *DriverService) Get(ctx context.Context, driverID string) (*model.Driver, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	driver, err := s.driverRepo.FindByID(ctx, driverID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find driver: %w", err))
	}
	if driver == nil {
		return nil, apperrors.NotFound("driver")
	}
	return driver, nil
}
