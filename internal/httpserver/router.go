package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/blogspace/backend/internal/middleware"
)

type Deps struct {
	AuthHandler *AuthHTTP
	AuthMw      *middleware.AuthMiddleware
	DB          *gorm.DB
	ClientURL   string
}

func Register(e *echo.Echo, d *Deps) {
	e.Validator = NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.ClientURL},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("2M"))

	e.GET("/health", func(c echo.Context) error {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request().Context())
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"status": "db_error"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	auth := e.Group("/api/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout)
	auth.POST("/forgot-password", d.AuthHandler.ForgotPassword)
	auth.POST("/reset-password", d.AuthHandler.ResetPassword)
	auth.GET("/profile", d.AuthHandler.Profile, d.AuthMw.RequireAuth)
}
