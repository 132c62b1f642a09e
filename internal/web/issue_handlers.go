// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/issue"
)

// IssueResponse is the JSON view of an issue.
type IssueResponse struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ReporterEmail string    `json:"reporterEmail"`
	Assignee      *string   `json:"assignee"`
	Column        string    `json:"column"`
	Priority      string    `json:"priority"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func issueResponse(iss *issue.Issue) IssueResponse {
	resp := IssueResponse{
		ID:            iss.ID,
		Title:         iss.Title,
		Description:   iss.Description,
		ReporterEmail: iss.ReporterEmail,
		Column:        string(iss.Column),
		Priority:      string(iss.Priority),
		CreatedAt:     iss.CreatedAt,
		UpdatedAt:     iss.UpdatedAt,
	}
	if iss.AssigneeID != nil {
		s := iss.AssigneeID.String()
		resp.Assignee = &s
	}
	return resp
}

type createIssueRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ReporterEmail string `json:"reporterEmail"`
}

type updateIssueRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	ReporterEmail *string `json:"reporterEmail"`
	Priority      *string `json:"priority"`
	Column        *string `json:"column"`
	Assignee      *string `json:"assignee"`
}

func pathIssueID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, auth.NewNotFoundError("ISSUE_NOT_FOUND", "issue")
	}
	return id, nil
}

func (a *api) createIssue(c *gin.Context) {
	var req createIssueRequest
	if !a.bind(c, &req) {
		return
	}
	iss, err := a.Issues.Create(c.Request.Context(), issue.CreateRequest{
		Title:         req.Title,
		Description:   req.Description,
		ReporterEmail: req.ReporterEmail,
	})
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Issue created successfully", "issue": issueResponse(iss)})
}

// listIssues accepts optional column, priority and assignee query filters.
func (a *api) listIssues(c *gin.Context) {
	filter, err := issue.ParseFilter(c.Query("column"), c.Query("priority"), c.Query("assignee"))
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}

	issues, err := a.Issues.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	out := make([]IssueResponse, 0, len(issues))
	for _, iss := range issues {
		out = append(out, issueResponse(iss))
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) getIssue(c *gin.Context) {
	id, err := pathIssueID(c)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	iss, err := a.Issues.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, issueResponse(iss))
}

func (a *api) updateIssue(c *gin.Context) {
	id, err := pathIssueID(c)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	var req updateIssueRequest
	if !a.bind(c, &req) {
		return
	}
	iss, err := a.Issues.Update(c.Request.Context(), id, issue.UpdateRequest{
		Title:         req.Title,
		Description:   req.Description,
		ReporterEmail: req.ReporterEmail,
		Priority:      req.Priority,
		Column:        req.Column,
		Assignee:      req.Assignee,
	})
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Issue updated successfully", "issue": issueResponse(iss)})
}

func (a *api) updateIssueStatus(c *gin.Context) {
	id, err := pathIssueID(c)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	iss, err := a.Issues.UpdateStatus(c.Request.Context(), id, c.Query("column"))
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Issue updated successfully", "issue": issueResponse(iss)})
}

func (a *api) deleteIssue(c *gin.Context) {
	id, err := pathIssueID(c)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	if err := a.Issues.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Issue deleted successfully"})
}
