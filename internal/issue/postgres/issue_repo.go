// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package postgres provides the PostgreSQL issue repository.
package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/issue"
	"github.com/bugreport/bugreport/internal/store"
)

const issueColumns = `id, title, description, reporter_email, assignee_id,
	       status_column, priority, created_at, updated_at`

// IssueRepository implements issue.Repository using PostgreSQL.
type IssueRepository struct {
	db store.DB
}

// NewIssueRepository creates a new IssueRepository.
func NewIssueRepository(db store.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts the issue and sets its generated ID.
func (r *IssueRepository) Create(ctx context.Context, iss *issue.Issue) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO issues (
			title, description, reporter_email, assignee_id,
			status_column, priority, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		iss.Title,
		iss.Description,
		iss.ReporterEmail,
		assigneeArg(iss.AssigneeID),
		string(iss.Column),
		string(iss.Priority),
		iss.CreatedAt,
		iss.UpdatedAt,
	).Scan(&iss.ID)
	if err != nil {
		return oops.Code("ISSUE_CREATE_FAILED").
			With("operation", "insert issue").
			Wrap(err)
	}
	return nil
}

// Get retrieves an issue by ID.
func (r *IssueRepository) Get(ctx context.Context, id int64) (*issue.Issue, error) {
	row := r.db.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)

	iss, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ISSUE_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ISSUE_GET_FAILED").
			With("operation", "get issue").
			With("id", id).
			Wrap(err)
	}
	return iss, nil
}

// List returns the issues matching filter ordered by ID.
func (r *IssueRepository) List(ctx context.Context, filter issue.Filter) ([]*issue.Issue, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, cond+" = $"+strconv.Itoa(len(args)))
	}
	if filter.Column != "" {
		add("status_column", string(filter.Column))
	}
	if filter.Priority != "" {
		add("priority", string(filter.Priority))
	}
	if filter.AssigneeID != nil {
		add("assignee_id", filter.AssigneeID.String())
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("ISSUE_LIST_FAILED").
			With("operation", "list issues").
			Wrap(err)
	}
	defer rows.Close()

	issues := make([]*issue.Issue, 0)
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, oops.Code("ISSUE_LIST_FAILED").
				With("operation", "scan issues").
				Wrap(err)
		}
		issues = append(issues, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ISSUE_LIST_FAILED").
			With("operation", "iterate issues").
			Wrap(err)
	}
	return issues, nil
}

// Update persists every mutable field of the issue.
func (r *IssueRepository) Update(ctx context.Context, iss *issue.Issue) error {
	result, err := r.db.Exec(ctx, `
		UPDATE issues SET
			title = $2, description = $3, reporter_email = $4, assignee_id = $5,
			status_column = $6, priority = $7, updated_at = $8
		WHERE id = $1
	`,
		iss.ID,
		iss.Title,
		iss.Description,
		iss.ReporterEmail,
		assigneeArg(iss.AssigneeID),
		string(iss.Column),
		string(iss.Priority),
		iss.UpdatedAt,
	)
	if store.IsForeignKeyViolation(err) {
		return oops.Code("ISSUE_ASSIGNEE_NOT_FOUND").
			With("id", iss.ID).
			Wrap(auth.NewValidationError("ISSUE_INVALID_ASSIGNEE", "assignee", "Invalid assignee", "Exists"))
	}
	if err != nil {
		return oops.Code("ISSUE_UPDATE_FAILED").
			With("operation", "update issue").
			With("id", iss.ID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ISSUE_NOT_FOUND").
			With("id", iss.ID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an issue.
func (r *IssueRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ISSUE_DELETE_FAILED").
			With("operation", "delete issue").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ISSUE_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func assigneeArg(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// scanIssue scans a single row into an Issue.
// Callers are responsible for handling pgx.ErrNoRows.
func scanIssue(row pgx.Row) (*issue.Issue, error) {
	var (
		iss              issue.Issue
		assignee         *string
		column, priority string
	)
	err := row.Scan(&iss.ID, &iss.Title, &iss.Description, &iss.ReporterEmail, &assignee,
		&column, &priority, &iss.CreatedAt, &iss.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Wrapf(err, "scan issue")
	}

	if assignee != nil {
		id, err := ulid.Parse(*assignee)
		if err != nil {
			return nil, oops.With("assignee_id", *assignee).Wrapf(err, "parse assignee id")
		}
		iss.AssigneeID = &id
	}
	iss.Column = issue.Column(column)
	iss.Priority = issue.Priority(priority)
	return &iss, nil
}

// Compile-time interface check.
var _ issue.Repository = (*IssueRepository)(nil)
