// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package issue implements the issue tracker: creating, listing, editing and
// moving issues across the board columns.
package issue

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Column is the board column an issue sits in.
type Column string

// Board columns, in workflow order.
const (
	ColumnBacklog    Column = "BACKLOG"
	ColumnTodo       Column = "TODO"
	ColumnInProgress Column = "IN_PROGRESS"
	ColumnReview     Column = "REVIEW"
	ColumnDone       Column = "DONE"
)

// Columns lists every column in workflow order.
var Columns = []Column{ColumnBacklog, ColumnTodo, ColumnInProgress, ColumnReview, ColumnDone}

// Priority ranks how urgent an issue is.
type Priority string

// Priorities, lowest first.
const (
	PriorityLowest  Priority = "LOWEST"
	PriorityLow     Priority = "LOW"
	PriorityMedium  Priority = "MEDIUM"
	PriorityHigh    Priority = "HIGH"
	PriorityHighest Priority = "HIGHEST"
)

// Priorities lists every priority, lowest first.
var Priorities = []Priority{PriorityLowest, PriorityLow, PriorityMedium, PriorityHigh, PriorityHighest}

// ParseColumn parses a column name case-insensitively.
func ParseColumn(s string) (Column, bool) {
	c := Column(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Columns {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// ParsePriority parses a priority name case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Priorities {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Issue is a tracked bug or task.
type Issue struct {
	ID            int64
	Title         string
	Description   string
	ReporterEmail string
	AssigneeID    *ulid.ULID
	Column        Column
	Priority      Priority
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
