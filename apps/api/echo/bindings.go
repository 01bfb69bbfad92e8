package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var orderingParam = "ordering"

// Ordering binds the `ordering` query param, eg. `?ordering=-created_at,title`.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by the endpoints issuing a token.
type AuthResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// CompletionRequest is the body of a completion marking. Completed defaults to true.
type CompletionRequest struct {
	Completed *bool `json:"completed"`
}
