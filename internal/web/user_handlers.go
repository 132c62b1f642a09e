// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/pkg/errutil"
)

// UserResponse is the public view of a user. The password hash is never
// serialized.
type UserResponse struct {
	ID                string    `json:"id"`
	Firstname         string    `json:"firstname"`
	Lastname          string    `json:"lastname"`
	Email             string    `json:"email"`
	Active            bool      `json:"active"`
	ProfilePicture    *string   `json:"profilePicture,omitempty"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type updateUserRequest struct {
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Email     *string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	RetNewPassword  string `json:"retNewPassword"`
}

type pictureRequest struct {
	Filename string `json:"filename"`
}

// PictureResponse carries the presigned upload target.
type PictureResponse struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// userResponse renders u. A picture download link is added when storage is
// configured; failing to presign it only drops the link.
func (a *api) userResponse(c *gin.Context, u *auth.User) UserResponse {
	resp := UserResponse{
		ID:             u.ID.String(),
		Firstname:      u.Firstname,
		Lastname:       u.Lastname,
		Email:          u.Email,
		Active:         u.Active,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if u.ProfilePicture != nil && a.Pictures != nil {
		link, err := a.Pictures.DownloadURL(c.Request.Context(), *u.ProfilePicture)
		if err != nil {
			errutil.LogError(a.Logger, "presign profile picture failed", err)
		} else {
			resp.ProfilePictureURL = link
		}
	}
	return resp
}

func (a *api) requestActivation(c *gin.Context) {
	id, _ := userID(c)
	if err := a.Auth.RequestActivation(c.Request.Context(), id); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Activation link sent"})
}

func (a *api) getUser(c *gin.Context) {
	id, err := pathUserID(c)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	user, err := a.Accounts.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, a.userResponse(c, user))
}

func (a *api) updateUser(c *gin.Context) {
	var req updateUserRequest
	if !a.bind(c, &req) {
		return
	}
	id, _ := userID(c)
	user, err := a.Accounts.Update(c.Request.Context(), id, auth.ProfileUpdate{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
	})
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, a.userResponse(c, user))
}

func (a *api) deleteUser(c *gin.Context) {
	id, _ := userID(c)
	if err := a.Accounts.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if !a.bind(c, &req) {
		return
	}
	id, _ := userID(c)
	err := a.Auth.ChangePassword(c.Request.Context(), id, auth.ChangePasswordRequest{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Confirmation:    req.RetNewPassword,
	})
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// uploadPicture presigns an upload and records the object key on the user
// before the client transfers the file.
func (a *api) uploadPicture(c *gin.Context) {
	if a.Pictures == nil {
		abortWithError(c, a.Logger, auth.NewUnavailableError("STORAGE_DISABLED", "profile pictures", errStorageDisabled))
		return
	}
	var req pictureRequest
	if !a.bind(c, &req) {
		return
	}
	id, _ := userID(c)
	upload, err := a.Pictures.UploadURL(c.Request.Context(), id, req.Filename)
	if err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	if _, err := a.Accounts.SetProfilePicture(c.Request.Context(), id, upload.Key); err != nil {
		abortWithError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, PictureResponse{UploadURL: upload.URL, Key: upload.Key, ExpiresAt: upload.ExpiresAt})
}
