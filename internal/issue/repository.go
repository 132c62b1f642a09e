// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package issue

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Column     Column
	Priority   Priority
	AssigneeID *ulid.ULID
}

// ParseFilter builds a Filter from query values. Empty values leave the
// corresponding field unset.
func ParseFilter(column, priority, assignee string) (Filter, error) {
	var f Filter
	if column = strings.TrimSpace(column); column != "" {
		c, ok := ParseColumn(column)
		if !ok {
			return Filter{}, invalidColumn()
		}
		f.Column = c
	}
	if priority = strings.TrimSpace(priority); priority != "" {
		p, ok := ParsePriority(priority)
		if !ok {
			return Filter{}, invalidPriority()
		}
		f.Priority = p
	}
	if assignee = strings.TrimSpace(assignee); assignee != "" {
		id, err := ulid.ParseStrict(assignee)
		if err != nil {
			return Filter{}, invalidAssignee()
		}
		f.AssigneeID = &id
	}
	return f, nil
}

// Repository manages issue persistence.
type Repository interface {
	// Create persists a new issue and assigns its ID.
	Create(ctx context.Context, issue *Issue) error

	// Get retrieves an issue by ID. Returns auth.ErrNotFound if missing.
	Get(ctx context.Context, id int64) (*Issue, error)

	// List returns matching issues ordered by ID.
	List(ctx context.Context, filter Filter) ([]*Issue, error)

	// Update persists every mutable field. Returns auth.ErrNotFound if missing.
	Update(ctx context.Context, issue *Issue) error

	// Delete removes an issue. Returns auth.ErrNotFound if missing.
	Delete(ctx context.Context, id int64) error
}
