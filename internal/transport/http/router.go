package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/online_catalog/internal/auth"
	"github.com/Skotchmaster/online_catalog/internal/handlers"
	"github.com/Skotchmaster/online_catalog/internal/middleware"
)

type Deps struct {
	DB             *gorm.DB
	Redis          redis.UniversalClient
	Auth           *auth.Authenticator
	ProductHandler *handlers.ProductHandler
	UserHandler    *handlers.UserHandler
	Logger         *slog.Logger

	// FilesDir is served under /files when set.
	FilesDir       string
	AllowedOrigins []string
	Development    bool
	// MaxUploadMB caps request bodies; zero means no limit.
	MaxUploadMB int
}

// New builds the echo instance with the shared middleware chain and routes.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(d.Development)

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.RequestID(), middleware.RequestLogger(d.Logger), echomw.Recover())
	if d.MaxUploadMB > 0 {
		e.Use(echomw.BodyLimit(fmt.Sprintf("%dM", d.MaxUploadMB)))
	}
	if len(d.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     d.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowCredentials: true,
		}))
	}

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d))
	if d.FilesDir != "" {
		e.Static("/files", d.FilesDir)
	}

	v1 := e.Group("/api/v1")
	requireAuth := auth.RequireAuth(d.Auth)

	users := v1.Group("/users")

	users.POST("/register", d.UserHandler.Register)
	users.POST("/login", d.UserHandler.Login)
	users.GET("/verify/:token", d.UserHandler.VerifyEmail)
	users.GET("/profile", d.UserHandler.Profile, requireAuth)
	users.PUT("/update", d.UserHandler.UpdateProfile, requireAuth)
	users.PUT("/change-password", d.UserHandler.ChangePassword, requireAuth)
	users.POST("/logout", d.UserHandler.LogOut, requireAuth)
	users.GET("/all", d.UserHandler.AllUsers, requireAuth)
	users.DELETE("/delete/:id", d.UserHandler.DeleteUser, requireAuth)

	products := v1.Group("/products")

	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/search", d.ProductHandler.Search)
	products.GET("/:id", d.ProductHandler.GetProduct)

	admin := products.Group("", requireAuth, auth.RequireAdmin)

	admin.POST("", d.ProductHandler.CreateProduct)
	admin.PUT("/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/:id", d.ProductHandler.DeleteProduct)
}

func ready(d *Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable").SetInternal(err)
		}
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "redis unavailable").SetInternal(err)
		}
		return c.NoContent(http.StatusOK)
	}
}
