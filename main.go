// Package main BookWise API.
//
// @title           BookWise Library API
// @version         1.0
// @description     library borrowing service (books, borrowings, payments).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/KittNeKit/BookWise/app/echoServer"
	authctrl "github.com/KittNeKit/BookWise/app/echoServer/controller/auth"
	bookctrl "github.com/KittNeKit/BookWise/app/echoServer/controller/book"
	borrowingctrl "github.com/KittNeKit/BookWise/app/echoServer/controller/borrowing"
	paymentctrl "github.com/KittNeKit/BookWise/app/echoServer/controller/payment"
	"github.com/KittNeKit/BookWise/app/echoServer/validation"
	"github.com/KittNeKit/BookWise/config"
	bookrepo "github.com/KittNeKit/BookWise/repository/book"
	borrowingrepo "github.com/KittNeKit/BookWise/repository/borrowing"
	paymentrepo "github.com/KittNeKit/BookWise/repository/payment"
	striperepo "github.com/KittNeKit/BookWise/repository/stripe"
	telegramrepo "github.com/KittNeKit/BookWise/repository/telegram"
	userrepo "github.com/KittNeKit/BookWise/repository/user"
	authsvc "github.com/KittNeKit/BookWise/service/auth"
	booksvc "github.com/KittNeKit/BookWise/service/book"
	borrowingsvc "github.com/KittNeKit/BookWise/service/borrowing"
	overduesvc "github.com/KittNeKit/BookWise/service/overdue"
	paymentsvc "github.com/KittNeKit/BookWise/service/payment"
	"github.com/KittNeKit/BookWise/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos & gateway clients
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	bwr := borrowingrepo.New(db)
	pr := paymentrepo.New(db)
	sr := striperepo.NewHTTP(cfg.StripeAPIKey)
	tn := telegramrepo.NewHTTP(cfg.TelegramToken, cfg.TelegramChatID)

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(br)
	ps := paymentsvc.New(pr, bwr, sr, tn, cfg.SiteURL, log)
	bws := borrowingsvc.New(db, bwr, br, pr, ur, ps, tn, log)
	sweep := overduesvc.New(bwr, tn, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowingC := &borrowingctrl.Controller{Svc: bws, Payments: ps, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: ps, Log: log}

	// overdue sweep on its own cadence
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
		if err := sweep.Run(context.Background()); err != nil {
			log.Error("overdue sweep failed", "err", err)
		}
	}); err != nil {
		log.Error("bad sweep schedule", "schedule", cfg.SweepSchedule, "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowingC,
		Payment:   paymentC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Info("starting server", "port", port, "sweep_schedule", cfg.SweepSchedule)

	e.Logger.Fatal(e.Start(":" + port))
}
