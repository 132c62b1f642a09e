// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package issue

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
)

// CreateRequest is the input to Service.Create.
type CreateRequest struct {
	Title         string
	Description   string
	ReporterEmail string
}

// UpdateRequest carries the fields to change. Nil fields are left as they
// are. A non-nil empty Assignee clears the assignment.
type UpdateRequest struct {
	Title         *string
	Description   *string
	ReporterEmail *string
	Priority      *string
	Column        *string
	Assignee      *string
}

// UserLookup resolves assignees.
type UserLookup interface {
	GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error)
}

// Service provides issue operations over a Repository.
type Service struct {
	repo   Repository
	users  UserLookup
	clock  auth.Clock
	logger *slog.Logger
}

// NewService creates a Service. users may be nil, in which case assignees
// are accepted without an existence check.
func NewService(repo Repository, users UserLookup, clock auth.Clock, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("ISSUE_SERVICE_INVALID").Errorf("issue repository is required")
	}
	if clock == nil {
		clock = auth.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, users: users, clock: clock, logger: logger}, nil
}

// Create files a new issue in the backlog with medium priority.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Issue, error) {
	title := strings.TrimSpace(req.Title)
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := ValidateDescription(req.Description); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.ReporterEmail)
	if err := ValidateReporterEmail(email); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	iss := &Issue{
		Title:         title,
		Description:   req.Description,
		ReporterEmail: email,
		Column:        ColumnBacklog,
		Priority:      PriorityMedium,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, iss); err != nil {
		return nil, auth.NewUnavailableError("ISSUE_CREATE_FAILED", "create issue", err)
	}
	s.logger.InfoContext(ctx, "issue created", "issue_id", iss.ID)
	return iss, nil
}

// List returns the issues matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Issue, error) {
	issues, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, auth.NewUnavailableError("ISSUE_LIST_FAILED", "list issues", err)
	}
	return issues, nil
}

// Get returns one issue.
func (s *Service) Get(ctx context.Context, id int64) (*Issue, error) {
	iss, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, issueNotFound(id)
		}
		return nil, auth.NewUnavailableError("ISSUE_GET_FAILED", "get issue", err)
	}
	return iss, nil
}

// Update applies the non-nil fields of req. All fields are validated before
// anything is written.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Issue, error) {
	iss, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if err := ValidateTitle(title); err != nil {
			return nil, err
		}
		iss.Title = title
	}
	if req.Description != nil {
		if err := ValidateDescription(*req.Description); err != nil {
			return nil, err
		}
		iss.Description = *req.Description
	}
	if req.ReporterEmail != nil {
		email := strings.TrimSpace(*req.ReporterEmail)
		if err := ValidateReporterEmail(email); err != nil {
			return nil, err
		}
		iss.ReporterEmail = email
	}
	if req.Priority != nil {
		p, ok := ParsePriority(*req.Priority)
		if !ok {
			return nil, invalidPriority()
		}
		iss.Priority = p
	}
	if req.Column != nil {
		c, ok := ParseColumn(*req.Column)
		if !ok {
			return nil, invalidColumn()
		}
		iss.Column = c
	}
	if req.Assignee != nil {
		assignee, err := s.resolveAssignee(ctx, *req.Assignee)
		if err != nil {
			return nil, err
		}
		iss.AssigneeID = assignee
	}

	if err := s.save(ctx, iss); err != nil {
		return nil, err
	}
	return iss, nil
}

// UpdateStatus moves an issue to another column.
func (s *Service) UpdateStatus(ctx context.Context, id int64, column string) (*Issue, error) {
	c, ok := ParseColumn(column)
	if !ok {
		return nil, invalidColumn()
	}
	iss, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	iss.Column = c
	if err := s.save(ctx, iss); err != nil {
		return nil, err
	}
	return iss, nil
}

// Delete removes an issue.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return issueNotFound(id)
		}
		return auth.NewUnavailableError("ISSUE_DELETE_FAILED", "delete issue", err)
	}
	s.logger.InfoContext(ctx, "issue deleted", "issue_id", id)
	return nil
}

func (s *Service) save(ctx context.Context, iss *Issue) error {
	iss.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, iss); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return issueNotFound(iss.ID)
		}
		return auth.NewUnavailableError("ISSUE_UPDATE_FAILED", "update issue", err)
	}
	return nil
}

func (s *Service) resolveAssignee(ctx context.Context, raw string) (*ulid.ULID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return nil, invalidAssignee()
	}
	if s.users != nil {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return nil, invalidAssignee()
			}
			return nil, auth.NewUnavailableError("ISSUE_ASSIGNEE_LOOKUP_FAILED", "look up assignee", err)
		}
	}
	return &id, nil
}

func issueNotFound(id int64) error {
	return oops.With("issue_id", id).Wrap(auth.NewNotFoundError("ISSUE_NOT_FOUND", "issue"))
}

func invalidColumn() error {
	return auth.NewValidationError("ISSUE_INVALID_COLUMN", "column", "Invalid column", "Enum")
}

func invalidPriority() error {
	return auth.NewValidationError("ISSUE_INVALID_PRIORITY", "priority", "Invalid priority", "Enum")
}

func invalidAssignee() error {
	return auth.NewValidationError("ISSUE_INVALID_ASSIGNEE", "assignee", "Invalid assignee", "Exists")
}
