package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/http/middlewares"
)

type UserDirectory interface {
	ListByRole(ctx context.Context, role user.Role) ([]user.User, error)
	CompleteOnboarding(ctx context.Context, id string) error
}

type UsersHandler struct {
	users   UserDirectory
	timeout time.Duration
}

func NewUsersHandler(users UserDirectory, timeout time.Duration) *UsersHandler {
	return &UsersHandler{users: users, timeout: timeout}
}

// Profile returns the caller as loaded by the auth middleware.
func (h *UsersHandler) Profile(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	ctx.JSON(http.StatusOK, u.Public())
}

func (h *UsersHandler) CompleteOnboarding(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.users.CompleteOnboarding(cctx, id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "user_not_found", "User not found")
			return
		}
		RespondInternal(ctx, "Could not complete onboarding", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Onboarding completed successfully"})
}

// ListByRole lists users with ?role=. Staff may list any role; patients may
// only look up doctors.
func (h *UsersHandler) ListByRole(ctx *gin.Context) {
	caller, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	raw, present := ctx.GetQuery("role")
	if !present || raw == "" {
		RespondBadRequest(ctx, "Role parameter is required", nil)
		return
	}

	role := user.Role(raw)
	if !role.Valid() {
		RespondBadRequest(ctx, "Invalid role", gin.H{"allowed": user.AllRoles})
		return
	}

	if !caller.Role.IsStaff() && role != user.RoleDoctor {
		RespondForbidden(ctx, "Patients may only list doctors")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	users, err := h.users.ListByRole(cctx, role)
	if err != nil {
		RespondInternal(ctx, "Could not list users", err)
		return
	}

	out := make([]user.Public, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}

	RespondJSONWithETag(ctx, http.StatusOK, out)
}
