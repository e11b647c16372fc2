package api

import (
	"net/http"

	"barbeintiaden/photo-archive/internal/service"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	commentService service.CommentService
}

func NewCommentHandler(commentService service.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

// AddCommentRequest is accepted as JSON or as a form.
type AddCommentRequest struct {
	Content string `json:"content" form:"content"`
}

// Add handles POST /api/v1/photos/:id/comments.
func (h *CommentHandler) Add(c *gin.Context) {
	var req AddCommentRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	comment, err := h.commentService.AddComment(c.Request.Context(), currentUser(c), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}
