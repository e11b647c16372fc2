package api

import (
	"net/http"

	"barbeintiaden/photo-archive/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminService service.AdminService
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ApprovalRequest leaves Approved nil when the field is missing so that the
// validator can report it.
type ApprovalRequest struct {
	Approved *bool `json:"approved" form:"approved"`
}

// PendingUsers handles GET /api/v1/admin/users/pending.
func (h *AdminHandler) PendingUsers(c *gin.Context) {
	users, err := h.adminService.ListPendingUsers(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// SetApproval handles PATCH /api/v1/admin/users/:id/approval.
func (h *AdminHandler) SetApproval(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.adminService.SetApproval(c.Request.Context(), currentUser(c), c.Param("id"), req.Approved); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /api/v1/me.
func Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
