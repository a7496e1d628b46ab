package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"enquiryflow/auth"
	"enquiryflow/metrics"
	"enquiryflow/validation"
)

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *server) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			metrics.ValidationFailure(verrs.Fields()...)
			respondInvalid(c, err)
		case errors.Is(err, auth.ErrDuplicateUsername):
			respondFail(c, http.StatusConflict, "Username already exists")
		case errors.Is(err, auth.ErrDuplicateEmail):
			respondFail(c, http.StatusConflict, "Email already exists")
		case errors.Is(err, auth.ErrDuplicateMobile):
			respondFail(c, http.StatusConflict, "Mobile number already exists")
		default:
			s.respondServerError(c, "Failed to create user", err)
		}
		return
	}

	respondOK(c, http.StatusCreated, "User created successfully", newUserResponse(user))
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Mobile:    u.Mobile,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func (s *server) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.auth.Login(c.Request.Context(), req)
	if err != nil {
		metrics.AuthAttempt("login", false)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondFail(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.respondServerError(c, "Server error", err)
		return
	}

	metrics.AuthAttempt("login", true)
	c.JSON(http.StatusOK, loginResponse{
		Success:      true,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (s *server) refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		respondFail(c, http.StatusUnauthorized, "Refresh token not provided")
		return
	}

	access, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		metrics.AuthAttempt("refresh", false)
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			respondFail(c, http.StatusForbidden, "Invalid refresh token")
			return
		}
		s.respondServerError(c, "Server error", err)
		return
	}

	metrics.AuthAttempt("refresh", true)
	c.JSON(http.StatusOK, loginResponse{Success: true, AccessToken: access})
}

func (s *server) logout(c *gin.Context) {
	p, _ := principalFrom(c)
	if err := s.auth.Logout(c.Request.Context(), p.UserID); err != nil {
		s.respondServerError(c, "Server error", err)
		return
	}
	respondOK(c, http.StatusOK, "Logged out successfully", nil)
}

// currentUser returns the account behind the access token. A token for a
// deleted account is treated as not found rather than unauthorized.
func (s *server) currentUser(c *gin.Context) {
	p, _ := principalFrom(c)
	user, err := s.auth.GetUserByID(c.Request.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			respondFail(c, http.StatusNotFound, "User not found")
			return
		}
		s.respondServerError(c, "Server error", err)
		return
	}
	respondOK(c, http.StatusOK, "", newUserResponse(user))
}
