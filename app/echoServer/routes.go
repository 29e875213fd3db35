package echoServer

import (
	"github.com/labstack/echo/v4"

	"github.com/KittNeKit/BookWise/app/echoServer/controller/auth"
	"github.com/KittNeKit/BookWise/app/echoServer/controller/book"
	"github.com/KittNeKit/BookWise/app/echoServer/controller/borrowing"
	"github.com/KittNeKit/BookWise/app/echoServer/controller/payment"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller
	Payment   *payment.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Auth
	authed := e.Group("/v1")
	authed.Use(JWTAuth(c.JWTSecret)...)

	// Books
	authed.GET("/books", c.Book.List)
	authed.GET("/books/:id", c.Book.Detail)
	// Staff endpoints
	authed.POST("/books", c.Book.Create)
	authed.PUT("/books/:id", c.Book.Update)
	authed.DELETE("/books/:id", c.Book.Delete)

	// Borrowings
	authed.POST("/borrowings", c.Borrowing.Create)
	authed.GET("/borrowings", c.Borrowing.List)
	authed.GET("/borrowings/:id", c.Borrowing.Detail)
	authed.POST("/borrowings/:id/return", c.Borrowing.Return)
	authed.GET("/borrowings/:id/success", c.Borrowing.Success)
	authed.GET("/borrowings/:id/cancel", c.Borrowing.Cancel)

	// Payments
	authed.GET("/payments", c.Payment.List)
	authed.GET("/payments/:id", c.Payment.Detail)
}
