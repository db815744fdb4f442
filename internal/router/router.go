package router

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"requestportal/internal/auth"
	"requestportal/internal/config"
	"requestportal/internal/errors"
	"requestportal/internal/handler"
	"requestportal/internal/model"
	"requestportal/internal/repository"
	"requestportal/internal/storage"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	Auth     *handler.AuthHandler
	Requests *handler.RequestHandler
	Upload   *handler.UploadHandler
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	log *zap.Logger,
	jwtService *auth.JWTService,
	userRepo repository.UserRepository,
	h Handlers,
) {
	e.HTTPErrorHandler = ErrorHandler(log)
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestID())
	e.Use(RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.ClientOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	if cfg.UploadBackend != "cloudinary" {
		e.Static(storage.PublicPrefix, cfg.UploadDir)
	}

	api := e.Group("/api")

	authed := Authenticate(jwtService, userRepo)

	// Public auth routes
	authGroup := api.Group("/auth", authRateLimiter(cfg))
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/verify-email", h.Auth.VerifyEmail)
	authGroup.POST("/resend-otp", h.Auth.ResendOTP)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/forgot-password", h.Auth.ForgotPassword)
	authGroup.PUT("/reset-password/:resettoken", h.Auth.ResetPassword)
	authGroup.GET("/me", h.Auth.Me, authed...)

	// Request routes
	requests := api.Group("/requests", authed...)
	requests.POST("", h.Requests.Create, Authorize(model.PermSubmitRequest))
	requests.GET("/me", h.Requests.ListMine, Authorize(model.PermViewOwnRequests))
	requests.GET("/all", h.Requests.ListAll, Authorize(model.PermViewAllRequests))
	requests.GET("/:id", h.Requests.Get)
	requests.PUT("/:id", h.Requests.Update, Authorize(model.PermReviewRequests))

	// Upload route
	uploadLimit := cfg.MaxUploadBytes
	if uploadLimit <= 0 {
		uploadLimit = storage.DefaultMaxBytes
	}
	api.POST("/upload", h.Upload.Upload, append(authed,
		Authorize(model.PermUploadFiles),
		bodyLimit(uploadLimit),
	)...)
}

// Authenticate returns the middleware chain that verifies the bearer token and
// loads the caller's current role.
func Authenticate(jwtService *auth.JWTService, userRepo repository.UserRepository) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		echojwt.WithConfig(echojwt.Config{
			ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
				claims, err := jwtService.Validate(token)
				if err != nil {
					return nil, err
				}
				return claims, nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrUnauthorized.ToResponse()).SetInternal(err)
			},
		}),
		LoadActor(userRepo),
	}
}

// LoadActor resolves the token subject to a live user and stores a model.Actor
// on the context. Tokens of deleted users are rejected; lookup failures are 500s.
func LoadActor(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get("user").(*auth.Claims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrUnauthorized.ToResponse())
			}
			id, err := claims.ParsedUserID()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrUnauthorized.ToResponse())
			}
			user, err := userRepo.FindByID(c.Request().Context(), id)
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrUnauthorized.ToResponse()).SetInternal(err)
			}
			if err != nil {
				return fmt.Errorf("load actor: %w", err)
			}
			c.Set(handler.ActorContextKey, model.Actor{ID: user.ID, Role: user.Role})
			return next(c)
		}
	}
}

// Authorize rejects callers whose role lacks permission.
func Authorize(permission model.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := c.Get(handler.ActorContextKey).(model.Actor)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrUnauthorized.ToResponse())
			}
			if !actor.Can(permission) {
				return echo.NewHTTPError(http.StatusForbidden, errors.ErrForbidden.ToResponse())
			}
			return next(c)
		}
	}
}

func authRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	perMinute := cfg.AuthRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	burst := cfg.AuthRateBurst
	if burst <= 0 {
		burst = 10
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, errors.ErrorResponse{
				Message: "Too many requests, please try again later",
				Code:    "RATE_LIMITED",
			})
		},
	})
}

// bodyLimit caps multipart bodies a little above the file ceiling to leave room
// for form framing.
func bodyLimit(maxFileBytes int64) echo.MiddlewareFunc {
	return middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: strconv.FormatInt(maxFileBytes+64*1024, 10),
	})
}

// ErrorHandler renders every error in the shared envelope. Unexpected errors
// are logged and reported without detail.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := errors.ErrorResponse{Message: "internal server error", Code: "INTERNAL_ERROR"}

		var he *echo.HTTPError
		if stderrors.As(err, &he) {
			status = he.Code
			switch msg := he.Message.(type) {
			case errors.ErrorResponse:
				body = msg
			case string:
				body = errors.ErrorResponse{Message: msg, Code: codeForStatus(status)}
			default:
				body = errors.ErrorResponse{Message: http.StatusText(status), Code: codeForStatus(status)}
			}
			if status >= http.StatusInternalServerError {
				log.Error("request failed",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Path()),
					zap.Error(he.Internal),
				)
			}
		} else {
			mapped := errors.MapErrorToHTTP(err)
			status = mapped.StatusCode
			body = mapped.ToErrorResponse()
			if status >= http.StatusInternalServerError {
				log.Error("request failed",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Path()),
					zap.Error(err),
				)
			}
		}

		body.Success = false
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_FAILED"
	}
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
