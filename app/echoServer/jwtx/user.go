// app/echoServer/jwtx/user.go
package jwtx

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/KittNeKit/BookWise/model"
)

// UserID returns the authenticated user id set by the auth middleware.
func UserID(c echo.Context) int64 {
	id, _ := c.Get("user_id").(int64)
	return id
}

// IsStaff reports the staff claim set by the auth middleware.
func IsStaff(c echo.Context) bool {
	staff, _ := c.Get("is_staff").(bool)
	return staff
}

// Scope builds the single authorization scope shared by borrowing and
// payment listings: staff may filter by an explicit ?user_id, everyone
// else is pinned to their own records.
func Scope(c echo.Context) model.Scope {
	s := model.Scope{UserID: UserID(c), Staff: IsStaff(c)}
	if s.Staff {
		if v, err := strconv.ParseInt(c.QueryParam("user_id"), 10, 64); err == nil && v > 0 {
			s.FilterUserID = v
		}
	}
	return s
}
