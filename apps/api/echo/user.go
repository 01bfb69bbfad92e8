package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/user"
)

const profileImageField = "profile_image"

type authApi struct {
	auth     *authenticator
	svc      *user.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, auth *authenticator, svc *user.Service, validate *validator.Validate) {
	api := authApi{auth: auth, svc: svc, validate: validate}

	ag := g.Group("/auth")
	ag.POST("/register", api.register, auth.lenientMiddleware)
	ag.POST("/login", api.login, auth.lenientMiddleware)
	ag.POST("/logout", api.logout, auth.middleware, loginRequired)
	ag.POST("/token-refresh", api.refreshToken, auth.middleware, loginRequired)
}

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	token, err := api.auth.issue(ctx, usr)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	return ctx.JSON(http.StatusCreated, AuthResponse{User: usr, Token: token})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return errInvalidCredentials
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.issue(ctx, usr)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	return ctx.JSON(http.StatusOK, AuthResponse{User: usr, Token: token})
}

func (api *authApi) logout(ctx echo.Context) error {
	if err := api.auth.revoke(ctx); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
	images   uploadKind
}

func registerUserAPI(g *echo.Group, svc *user.Service, engine *authz.Engine, validate *validator.Validate, uploads core.UploadsConfig) {
	api := userApi{svc: svc, validate: validate, images: imageUploads(uploads)}

	ug := g.Group("/users", loginRequired)
	ug.GET("", api.query, authorizeMiddleware(engine, authz.ActionRead, authz.ResourceUserList))
	ug.GET("/me", api.me)
	ug.PUT("/me", api.updateMe)
	ug.GET("/me/profile-image", api.profileImage)
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	return ctx.JSON(http.StatusOK, usr)
}

// updateMe takes JSON, or a multipart form which may carry a new profile image.
func (api *userApi) updateMe(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)

	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err := data.Validate(usr, api.validate, api.svc); err != nil {
		return err
	}
	upload, closer, err := formUpload(ctx, profileImageField, api.images, false)
	if err != nil {
		return err
	}
	defer closeUpload(closer)

	usr, err = api.svc.UpdateProfile(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	if upload != nil {
		usr, err = api.svc.SetProfileImage(ctx.Request().Context(), usr, *upload)
		if err != nil {
			return errors.Wrap(err, "setting profile image")
		}
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) profileImage(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	rc, err := api.svc.OpenProfileImage(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "opening profile image")
	}
	return sendFile(ctx, rc, usr.ProfileImage, "")
}
