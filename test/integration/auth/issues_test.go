// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

//go:build integration

package auth_test

import (
	"net/http"
	"strconv"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/web"
)

type issueEnvelope struct {
	Message string            `json:"message"`
	Issue   web.IssueResponse `json:"issue"`
}

var _ = Describe("Issues over HTTP", func() {
	var (
		token  string
		userID string
	)

	BeforeEach(func() {
		register("ada@example.com")
		token = login("ada@example.com", password).AccessToken
		id, err := env.Auth.CheckAuthorization(env.ctx, auth.BearerPrefix+token)
		Expect(err).NotTo(HaveOccurred())
		userID = id.String()
	})

	issuePath := func(id int64) string {
		return "/api/issues/" + strconv.FormatInt(id, 10)
	}

	It("creates an issue in the backlog with medium priority", func() {
		var created issueEnvelope
		Expect(apiCall(http.MethodPost, "/api/issues", token, map[string]string{
			"title": "Login button broken", "description": "Nothing happens", "reporterEmail": "qa@example.com",
		}, &created)).To(Equal(http.StatusOK))

		Expect(created.Message).To(Equal("Issue created successfully"))
		Expect(created.Issue.ID).To(BeNumerically(">", 0))
		Expect(created.Issue.Column).To(Equal("BACKLOG"))
		Expect(created.Issue.Priority).To(Equal("MEDIUM"))
		Expect(created.Issue.Assignee).To(BeNil())

		var fetched web.IssueResponse
		Expect(apiCall(http.MethodGet, issuePath(created.Issue.ID), token, nil, &fetched)).To(Equal(http.StatusOK))
		Expect(fetched.Title).To(Equal("Login button broken"))
	})

	It("assigns, moves, filters and deletes an issue", func() {
		var created issueEnvelope
		Expect(apiCall(http.MethodPost, "/api/issues", token, map[string]string{
			"title": "Crash on save", "description": "Stack trace attached", "reporterEmail": "qa@example.com",
		}, &created)).To(Equal(http.StatusOK))
		id := created.Issue.ID

		var updated issueEnvelope
		Expect(apiCall(http.MethodPut, issuePath(id), token, map[string]string{
			"assignee": userID, "priority": "high",
		}, &updated)).To(Equal(http.StatusOK))
		Expect(updated.Issue.Assignee).To(HaveValue(Equal(userID)))
		Expect(updated.Issue.Priority).To(Equal("HIGH"))

		Expect(apiCall(http.MethodPut, issuePath(id)+"/status?column=in_progress", token, nil, &updated)).
			To(Equal(http.StatusOK))
		Expect(updated.Issue.Column).To(Equal("IN_PROGRESS"))

		var listed []web.IssueResponse
		Expect(apiCall(http.MethodGet, "/api/issues?assignee="+userID, token, nil, &listed)).To(Equal(http.StatusOK))
		Expect(listed).To(HaveLen(1))
		Expect(apiCall(http.MethodGet, "/api/issues?column=DONE", token, nil, &listed)).To(Equal(http.StatusOK))
		Expect(listed).To(BeEmpty())

		Expect(apiCall(http.MethodDelete, issuePath(id), token, nil, nil)).To(Equal(http.StatusOK))
		var apiErr web.APIError
		Expect(apiCall(http.MethodGet, issuePath(id), token, nil, &apiErr)).To(Equal(http.StatusNotFound))
		Expect(apiErr.Type).To(Equal(web.TypeNotFound))
	})

	It("rejects an unknown assignee", func() {
		var created issueEnvelope
		Expect(apiCall(http.MethodPost, "/api/issues", token, map[string]string{
			"title": "Typo", "description": "Footer", "reporterEmail": "qa@example.com",
		}, &created)).To(Equal(http.StatusOK))

		var apiErr web.APIError
		Expect(apiCall(http.MethodPut, issuePath(created.Issue.ID), token, map[string]string{
			"assignee": "01J00000000000000000000000",
		}, &apiErr)).To(Equal(http.StatusBadRequest))
		Expect(apiErr.Field).To(Equal("assignee"))
	})

	It("clears assignments when the assignee deletes their account", func() {
		var created issueEnvelope
		Expect(apiCall(http.MethodPost, "/api/issues", token, map[string]string{
			"title": "Slow search", "description": "Takes 10s", "reporterEmail": "qa@example.com",
		}, &created)).To(Equal(http.StatusOK))
		Expect(apiCall(http.MethodPut, issuePath(created.Issue.ID), token,
			map[string]string{"assignee": userID}, nil)).To(Equal(http.StatusOK))

		Expect(apiCall(http.MethodDelete, "/api/users/"+userID, token, nil, nil)).To(Equal(http.StatusNoContent))

		other := "grace@example.com"
		register(other)
		otherToken := login(other, password).AccessToken
		var fetched web.IssueResponse
		Expect(apiCall(http.MethodGet, issuePath(created.Issue.ID), otherToken, nil, &fetched)).To(Equal(http.StatusOK))
		Expect(fetched.Assignee).To(BeNil())
	})

	It("requires authorization", func() {
		var apiErr web.APIError
		Expect(apiCall(http.MethodGet, "/api/issues", "", nil, &apiErr)).To(Equal(http.StatusBadRequest))
		Expect(apiErr.Type).To(Equal(web.TypeAccess))
	})
})
