// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

//go:build integration

package auth_test

import (
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/web"
)

const password = "Secr3t!pass"

func register(email string) {
	GinkgoHelper()
	_, err := env.Auth.Register(env.ctx, auth.RegistrationRequest{
		Firstname: "Ada", Lastname: "Lovelace", Email: email, Password: password,
	})
	Expect(err).NotTo(HaveOccurred())
}

func login(email, pw string) web.TokenResponse {
	GinkgoHelper()
	var tokens web.TokenResponse
	status := apiCall(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": pw}, &tokens)
	Expect(status).To(Equal(http.StatusOK))
	return tokens
}

func errorsAs[T error](err error, target *T) bool {
	return errors.As(err, target)
}

func errorIsNotFound(err error) bool {
	var nf *auth.NotFoundError
	return errors.As(err, &nf)
}

var _ = Describe("Registration and login", func() {
	It("registers, logs in and authorizes requests", func() {
		var body map[string]string
		status := apiCall(http.MethodPost, "/api/auth/register", "", map[string]string{
			"firstname": "Ada", "lastname": "Lovelace", "email": "ada@example.com", "password": password,
		}, &body)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["refreshToken"]).NotTo(BeEmpty())

		tokens := login("ada@example.com", password)
		id, err := env.Auth.CheckAuthorization(env.ctx, auth.BearerPrefix+tokens.AccessToken)
		Expect(err).NotTo(HaveOccurred())

		var user web.UserResponse
		Expect(apiCall(http.MethodGet, "/api/users/"+id.String(), tokens.AccessToken, nil, &user)).To(Equal(http.StatusOK))
		Expect(user.Email).To(Equal("ada@example.com"))
		Expect(user.Active).To(BeFalse())
	})

	It("rejects a second registration with the same email", func() {
		register("ada@example.com")

		_, err := env.Auth.Register(env.ctx, auth.RegistrationRequest{
			Firstname: "Other", Lastname: "Person", Email: "ada@example.com", Password: password,
		})
		var ve *auth.ValidationError
		Expect(errorsAs(err, &ve)).To(BeTrue())
		Expect(ve.Field).To(Equal("email"))
		Expect(ve.Message).To(Equal("Email already exists"))
	})

	It("fails authorization once the access token expires", func() {
		register("ada@example.com")
		tokens := login("ada@example.com", password)

		env.clock.Advance(auth.DefaultAccessTTL + time.Second)

		_, err := env.Auth.CheckAuthorization(env.ctx, auth.BearerPrefix+tokens.AccessToken)
		Expect(err).To(MatchError(&auth.AuthenticationError{Reason: auth.InvalidToken}),
			"an expired token is indistinguishable from a forged one")

		var apiErr web.APIError
		Expect(apiCall(http.MethodGet, "/api/issues", tokens.AccessToken, nil, &apiErr)).To(Equal(http.StatusUnauthorized))
		Expect(apiErr.Type).To(Equal(web.TypeAccess))
	})

	It("does not accept a refresh token as an access token", func() {
		register("ada@example.com")
		tokens := login("ada@example.com", password)

		_, err := env.Auth.CheckAuthorization(env.ctx, auth.BearerPrefix+tokens.RefreshToken)
		Expect(err).To(MatchError(&auth.AuthenticationError{Reason: auth.InvalidToken}))
	})
})

var _ = Describe("Refresh sessions", func() {
	It("rotates refresh tokens and rejects replays", func() {
		register("ada@example.com")
		first := login("ada@example.com", password)

		var rotated web.TokenResponse
		Expect(apiCall(http.MethodPost, "/api/auth/refresh", "",
			map[string]string{"refreshToken": first.RefreshToken}, &rotated)).To(Equal(http.StatusOK))

		_, err := env.Auth.Refresh(env.ctx, first.RefreshToken)
		Expect(err).To(MatchError(&auth.AuthenticationError{Reason: auth.Revoked}))

		_, err = env.Auth.Refresh(env.ctx, rotated.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
	})

	It("revokes earlier refresh tokens on password change while new ones work", func() {
		register("ada@example.com")
		before := login("ada@example.com", password)
		id, err := env.Auth.CheckAuthorization(env.ctx, auth.BearerPrefix+before.AccessToken)
		Expect(err).NotTo(HaveOccurred())

		Expect(env.Auth.ChangePassword(env.ctx, id, auth.ChangePasswordRequest{
			CurrentPassword: password, NewPassword: "N3w!password", Confirmation: "N3w!password",
		})).To(Succeed())

		_, err = env.Auth.Refresh(env.ctx, before.RefreshToken)
		Expect(err).To(MatchError(&auth.AuthenticationError{Reason: auth.Revoked}))

		after := login("ada@example.com", "N3w!password")
		_, err = env.Auth.Refresh(env.ctx, after.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
	})

	It("sweeps sessions past their expiry", func() {
		register("ada@example.com")
		login("ada@example.com", password)

		env.clock.Advance(auth.DefaultRefreshTTL + time.Minute)
		n, err := env.Sessions.DeleteExpired(env.ctx, env.clock.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 2), "registration and login each recorded a session")
	})
})

var _ = Describe("Password reset", func() {
	It("invalidates an earlier reset link when a new one is issued", func() {
		register("ada@example.com")

		Expect(env.Auth.RequestPasswordReset(env.ctx, "ada@example.com")).To(Succeed())
		first, ok := env.mailer.Last()
		Expect(ok).To(BeTrue())
		Expect(env.Auth.RequestPasswordReset(env.ctx, "ada@example.com")).To(Succeed())
		second, _ := env.mailer.Last()
		Expect(second.Token).NotTo(Equal(first.Token))

		err := env.Auth.ResetPassword(env.ctx, first.Token, "N3w!password", "N3w!password")
		Expect(errorIsNotFound(err)).To(BeTrue())

		Expect(env.Auth.ResetPassword(env.ctx, second.Token, "N3w!password", "N3w!password")).To(Succeed())
		login("ada@example.com", "N3w!password")
	})

	It("consumes a reset token only once", func() {
		register("ada@example.com")
		Expect(env.Auth.RequestPasswordReset(env.ctx, "ada@example.com")).To(Succeed())
		sent, _ := env.mailer.Last()

		Expect(env.Auth.ResetPassword(env.ctx, sent.Token, "N3w!password", "N3w!password")).To(Succeed())
		err := env.Auth.ResetPassword(env.ctx, sent.Token, "An0ther!pass", "An0ther!pass")
		Expect(errorIsNotFound(err)).To(BeTrue())
	})

	It("keeps the token when the new password violates the policy", func() {
		register("ada@example.com")
		Expect(env.Auth.RequestPasswordReset(env.ctx, "ada@example.com")).To(Succeed())
		sent, _ := env.mailer.Last()

		var ve *auth.ValidationError
		Expect(errorsAs(env.Auth.ResetPassword(env.ctx, sent.Token, "short", "short"), &ve)).To(BeTrue())
		Expect(env.Auth.ResetPassword(env.ctx, sent.Token, "N3w!password", "N3w!password")).To(Succeed())
	})

	It("rejects an expired reset token and sweeps it", func() {
		register("ada@example.com")
		Expect(env.Auth.RequestPasswordReset(env.ctx, "ada@example.com")).To(Succeed())
		sent, _ := env.mailer.Last()

		env.clock.Advance(auth.ResetTokenExpiry + time.Second)
		err := env.Auth.ResetPassword(env.ctx, sent.Token, "N3w!password", "N3w!password")
		Expect(err).To(HaveOccurred())

		_, err = env.Auth.ResetTokens().Sweep(env.ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	It("answers 202 for unknown emails without sending mail", func() {
		Expect(apiCall(http.MethodPost, "/api/auth/password-reset", "",
			map[string]string{"email": "nobody@example.com"}, nil)).To(Equal(http.StatusAccepted))
		Expect(env.mailer.Sent()).To(BeEmpty())
	})
})

var _ = Describe("Activation", func() {
	It("activates an account through the emailed token, which is purpose bound", func() {
		register("ada@example.com")
		tokens := login("ada@example.com", password)

		Expect(apiCall(http.MethodPost, "/api/users/me/activation", tokens.AccessToken, nil, nil)).
			To(Equal(http.StatusAccepted))
		sent, ok := env.mailer.Last()
		Expect(ok).To(BeTrue())
		Expect(sent.Kind).To(Equal(auth.MailActivate))

		err := env.Auth.ResetPassword(env.ctx, sent.Token, "N3w!password", "N3w!password")
		Expect(errorIsNotFound(err)).To(BeTrue(), "an activation token cannot reset a password")

		Expect(apiCall(http.MethodPost, "/api/auth/activate/"+sent.Token, "", nil, nil)).To(Equal(http.StatusOK))
		user, err := env.Users.GetByEmail(env.ctx, "ada@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Active).To(BeTrue())
	})
})
