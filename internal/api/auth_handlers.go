package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/store/user"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token"`
	ExpiresIn int        `json:"expires_in"`
	User      *user.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	u := &user.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hashedBytes),
		Role:         user.RoleUser,
		CreatedAt:    time.Now(),
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			h.writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		h.logger.WithFields(logrus.Fields{
			"function": "register",
			"error":    err.Error(),
		}).Error("failed to create user")
		h.writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.issueToken(w, http.StatusCreated, u)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			h.writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.WithFields(logrus.Fields{
			"function": "login",
			"error":    err.Error(),
		}).Error("failed to look up user")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.issueToken(w, http.StatusOK, u)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	u, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func (h *Handler) issueToken(w http.ResponseWriter, status int, u *user.User) {
	token, err := h.auth.GenerateToken(u.ID, u.Email, u.Role)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	h.writeJSON(w, status, tokenResponse{
		Success:   true,
		Token:     token,
		ExpiresIn: int(h.auth.Validity().Seconds()),
		User:      u,
	})
}
