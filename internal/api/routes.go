package api

import (
	"net/http"

	"barbeintiaden/photo-archive/internal/cache"
	"barbeintiaden/photo-archive/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies collects what the routes are wired to.
type Dependencies struct {
	AuthService    service.AuthService
	PhotoService   service.PhotoService
	CommentService service.CommentService
	AdminService   service.AdminService
	Images         BlobReader

	// Listings may be nil to disable the response cache.
	Listings        *cache.Listing
	Issuer          string
	MaxUploadMemory int64
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	photoHandler := NewPhotoHandler(deps.PhotoService, deps.MaxUploadMemory)
	commentHandler := NewCommentHandler(deps.CommentService)
	adminHandler := NewAdminHandler(deps.AdminService)
	imageHandler := NewImageHandler(deps.Images)

	authMiddleware := AuthMiddleware(deps.AuthService, deps.Issuer)
	cached := deps.Listings.Middleware(viewerKey)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Image proxy, public like the gallery links that point at it.
	router.GET("/api/photos/:ref", imageHandler.Serve)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(authMiddleware)
	{
		apiV1.GET("/me", RequireSignedIn(), Me)
		apiV1.GET("/years", cached, photoHandler.Years)

		photos := apiV1.Group("/photos")
		{
			photos.GET("", cached, photoHandler.List)
			photos.GET("/:id", cached, photoHandler.Get)
			// Approval is checked by the service after the form is validated.
			photos.POST("", photoHandler.Upload)
			photos.DELETE("/:id", RequireAdmin(), photoHandler.Delete)
			photos.POST("/:id/comments", RequireSignedIn(), commentHandler.Add)
		}

		admin := apiV1.Group("/admin")
		admin.Use(RequireAdmin())
		{
			admin.GET("/users/pending", adminHandler.PendingUsers)
			admin.PATCH("/users/:id/approval", adminHandler.SetApproval)
		}
	}
}
