package borrowing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/KittNeKit/BookWise/app/echoServer/jwtx"
	borrowingsvc "github.com/KittNeKit/BookWise/service/borrowing"
	paymentsvc "github.com/KittNeKit/BookWise/service/payment"
)

type Controller struct {
	Svc      borrowingsvc.Service
	Payments paymentsvc.Service
	V        *validator.Validate
	Log      *slog.Logger
}

// POST /v1/borrowings
func (h *Controller) Create(c echo.Context) error {
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	uid := jwtx.UserID(c)

	out, err := h.Svc.Create(c.Request().Context(), uid, req.BookID, req.ExpectedReturnDate)
	if err != nil {
		switch borrowingsvc.Code(err) {
		case borrowingsvc.ErrNoInventory:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "book out of stock"})
		case borrowingsvc.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case borrowingsvc.ErrBadExpectedDate:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "expected return date must be at least one day ahead"})
		case borrowingsvc.ErrPaymentSession:
			h.Log.Error("borrowing create: payment session", "err", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment session failed"})
		default:
			h.Log.Error("borrowing create", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, out)
}

// GET /v1/borrowings
func (h *Controller) List(c echo.Context) error {
	onlyActive := c.QueryParam("is_active") == "1" || c.QueryParam("is_active") == "true"

	rows, err := h.Svc.List(c.Request().Context(), jwtx.Scope(c), onlyActive)
	if err != nil {
		h.Log.Error("borrowing list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	out, err := h.Svc.Detail(c.Request().Context(), jwtx.Scope(c), id)
	if err != nil {
		if borrowingsvc.Code(err) == borrowingsvc.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		}
		h.Log.Error("borrowing detail", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, out)
}

// POST /v1/borrowings/:id/return
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	if err := h.Svc.Return(c.Request().Context(), id); err != nil {
		switch borrowingsvc.Code(err) {
		case borrowingsvc.ErrAlreadyReturned:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "borrowing already returned"})
		case borrowingsvc.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case borrowingsvc.ErrPaymentSession:
			h.Log.Error("borrowing return: payment session", "err", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment session failed"})
		default:
			h.Log.Error("borrowing return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": "You are return your borrowing book."})
}

// GET /v1/borrowings/:id/success?session_id=
func (h *Controller) Success(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "session_id is required"})
	}

	if err := h.Payments.Confirm(c.Request().Context(), sessionID); err != nil {
		switch paymentsvc.Code(err) {
		case paymentsvc.ErrUnknownSession:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown session"})
		case paymentsvc.ErrNotConfirmed:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment not confirmed yet"})
		case paymentsvc.ErrSessionFailed:
			h.Log.Error("payment confirm: gateway", "err", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
		default:
			h.Log.Error("payment confirm", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": "Payment confirmed."})
}

// GET /v1/borrowings/:id/cancel?session_id=
func (h *Controller) Cancel(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "session_id is required"})
	}

	if err := h.Payments.Cancel(c.Request().Context(), sessionID); err != nil {
		if paymentsvc.Code(err) == paymentsvc.ErrUnknownSession {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown session"})
		}
		h.Log.Error("payment cancel", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Payment canceled. The session stays payable for 24 hours.",
	})
}
