// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bugreport/bugreport/internal/auth"
)

type registerRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	Password    string `json:"password"`
	RetPassword string `json:"retPassword"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

func tokenResponse(pair *auth.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		ExpiresIn:    int64(pair.Access.ExpiresAt.Sub(pair.Access.IssuedAt).Seconds()),
	}
}

func (a *api) register(c *gin.Context) {
	var req registerRequest
	if !a.bind(c, &req) {
		return
	}
	tok, err := a.Auth.Register(c.Request.Context(), auth.RegistrationRequest{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshToken": tok.Value})
}

func (a *api) login(c *gin.Context) {
	var req loginRequest
	if !a.bind(c, &req) {
		return
	}
	pair, err := a.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

func (a *api) refresh(c *gin.Context) {
	var req refreshRequest
	if !a.bind(c, &req) {
		return
	}
	pair, err := a.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

func (a *api) logout(c *gin.Context) {
	var req refreshRequest
	if !a.bind(c, &req) {
		return
	}
	if err := a.Auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requestPasswordReset answers 202 whether or not the email is registered.
func (a *api) requestPasswordReset(c *gin.Context) {
	var req resetRequest
	if !a.bind(c, &req) {
		return
	}
	if err := a.Auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "If the email is registered, a reset link has been sent"})
}

func (a *api) resetPassword(c *gin.Context) {
	var req resetConfirmRequest
	if !a.bind(c, &req) {
		return
	}
	if err := a.Auth.ResetPassword(c.Request.Context(), req.Token, req.Password, req.RetPassword); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) activate(c *gin.Context) {
	if err := a.Auth.Activate(c.Request.Context(), c.Param("token")); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account activated"})
}
