package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vantage-tms/vantage-tms/internal/authz"
	"github.com/vantage-tms/vantage-tms/internal/cache"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Authorizer supplies effective permission snapshots for actors.
// Implemented by the authz resolver.
type Authorizer interface {
	LoadByPrincipal(ctx context.Context, principalID string) (*authz.Effective, error)
}

// Service maintains the connect/disconnect graph over transports.
//
// The linkage is a directed pointer stored on the target record. Connect
// claims the target's pointer conditionally, so two racing connects on
// one target settle at the store rather than in this process. Disconnect
// is two idempotent clears; a retry after partial completion simply
// repeats no-ops until both sides are clean.
type Service struct {
	repo        Repository
	authorizer  Authorizer
	store       cache.Store
	invalidator *cache.Coordinator
	logger      *slog.Logger
	viewTTL     time.Duration
}

// NewService constructs the linkage service.
func NewService(repo Repository, authorizer Authorizer, store cache.Store, invalidator *cache.Coordinator, logger *slog.Logger, viewTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		authorizer:  authorizer,
		store:       store,
		invalidator: invalidator,
		logger:      logger,
		viewTTL:     viewTTL,
	}
}

// Connect links source and target: the target record stores the pointer
// back to its source. Requires the calendar edit capability. The target
// must exist, must not be the source itself, and must be unlinked.
func (s *Service) Connect(ctx context.Context, actorID string, sourceID, targetID int64) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if sourceID == targetID {
		return fmt.Errorf("%w: transport cannot connect to itself", shared.ErrConflict)
	}

	source, err := s.repo.FindByID(ctx, sourceID)
	if err != nil {
		return s.storeErr("source lookup", err)
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return s.storeErr("target lookup", err)
	}
	if target.ConnectedTransportID != nil {
		return fmt.Errorf("%w: transport %d already linked", shared.ErrConflict, targetID)
	}

	claimed, err := s.repo.ClaimLink(ctx, targetID, sourceID)
	if err != nil {
		return s.storeErr("claim link", err)
	}
	if !claimed {
		// A concurrent connect won the claim between our read and write.
		return fmt.Errorf("%w: transport %d already linked", shared.ErrConflict, targetID)
	}

	// Domain convenience, not an invariant: connected transports share a
	// driver, so the source's assignment travels to the target.
	if source.DriverName != nil {
		if err := s.repo.SetDriver(ctx, targetID, source.DriverName); err != nil {
			s.logger.Warn("driver copy failed after link",
				slog.Int64("source", sourceID), slog.Int64("target", targetID), slog.Any("error", err))
		}
	}

	_ = s.invalidator.InvalidateLinkage(ctx)
	s.logger.Info("transports connected",
		slog.Int64("source", sourceID), slog.Int64("target", targetID), slog.String("actor", actorID))
	return nil
}

// Disconnect removes the transport's own outgoing link and the outgoing
// link of every transport pointing at it. Both clears are idempotent, so
// a failure between them is healed by retrying the whole call.
func (s *Service) Disconnect(ctx context.Context, actorID string, id int64) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return s.storeErr("transport lookup", err)
	}

	if err := s.repo.ClearLink(ctx, id); err != nil {
		return s.storeErr("clear own link", err)
	}
	cleared, err := s.repo.ClearLinksTo(ctx, id)
	if err != nil {
		return s.storeErr("clear incoming links", err)
	}

	_ = s.invalidator.InvalidateLinkage(ctx)
	s.logger.Info("transport disconnected",
		slog.Int64("id", id), slog.Int64("incoming_cleared", cleared), slog.String("actor", actorID))
	return nil
}

// List returns a page of transports with paging metadata. The listing is
// served straight from the store: it backs a frequently refreshed planner
// view, so a staleness window would buy little.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Transport, shared.Pagination, error) {
	total, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, shared.Pagination{}, s.storeErr("count transports", err)
	}
	pagination := shared.NewPagination(page, perPage, total)
	transports, err := s.repo.ListPage(ctx, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, s.storeErr("list transports", err)
	}
	return transports, pagination, nil
}

// LinkageView returns the transport's linkage read model, cached for the
// configured TTL. Linkage mutations invalidate every cached view, so the
// first read after a connect or disconnect always sees fresh state.
func (s *Service) LinkageView(ctx context.Context, id int64) (*LinkageView, error) {
	key := cache.LinkageKey(id)
	if payload, err := s.store.Get(ctx, key); err == nil {
		var view LinkageView
		if err := json.Unmarshal(payload, &view); err == nil {
			return &view, nil
		}
		_ = s.store.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("linkage cache read failed", slog.Any("error", err))
	}

	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeErr("transport lookup", err)
	}
	incoming, err := s.repo.FindWhereConnectedEquals(ctx, id)
	if err != nil {
		return nil, s.storeErr("incoming lookup", err)
	}
	view := &LinkageView{Transport: *t, IncomingIDs: incoming}

	if payload, err := json.Marshal(view); err == nil {
		if err := s.store.Set(ctx, key, payload, s.viewTTL); err != nil {
			s.logger.Warn("linkage cache write failed", slog.Any("error", err))
		} else {
			s.invalidator.TrackLinkage(key)
		}
	}
	return view, nil
}

func (s *Service) authorize(ctx context.Context, actorID string) error {
	if actorID == "" {
		return shared.ErrUnauthenticated
	}
	eff, err := s.authorizer.LoadByPrincipal(ctx, actorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrForbidden
		}
		return err
	}
	if !eff.Allows(authz.SectionCalendar, authz.PermEdit) {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.ErrNotFound
	}
	s.logger.Error("transport store call failed", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%w: transport store: %v", shared.ErrUnavailable, err)
}
