package authentication

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/school-auth-service/internal/person"
)

const dateLayout = "2006-01-02"

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	FirstName   string  `json:"firstName" binding:"required"`
	LastName    string  `json:"lastName" binding:"required"`
	Email       string  `json:"email" binding:"required"`
	Password    string  `json:"password" binding:"required"`
	Role        string  `json:"role"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"dateOfBirth" example:"2010-05-17"`
	Address     *string `json:"address"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries a refresh token for rotation or logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// UpdateProfileRequest lists the mutable profile fields. Omitted fields stay unchanged.
type UpdateProfileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"dateOfBirth" example:"2010-05-17"`
	Address     *string `json:"address"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// SessionData is returned by register and login. Token duplicates AccessToken for older clients.
type SessionData struct {
	User         *person.Profile `json:"user"`
	Token        string          `json:"token"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

type TokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type SessionCount struct {
	Active int64 `json:"active"`
}

// Envelope wraps every successful response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AuthHandler handles authentication-related HTTP endpoints.
type AuthHandler struct {
	router  *gin.RouterGroup
	service AuthenticationService
	logger  *zap.Logger
}

// NewAuthHandler registers the public auth endpoints on router and the account endpoints
// behind requireAuth.
func NewAuthHandler(router *gin.RouterGroup, service AuthenticationService, requireAuth gin.HandlerFunc, logger *zap.Logger) *AuthHandler {
	h := &AuthHandler{router: router, service: service, logger: logger}

	public := h.router.Group("/auth")
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)
	public.POST("/logout", h.Logout)

	account := h.router.Group("/auth", requireAuth)
	account.GET("/profile", h.Profile)
	account.PUT("/profile", h.UpdateProfile)
	account.POST("/change-password", h.ChangePassword)
	account.POST("/logout-all", h.LogoutAll)
	account.GET("/sessions", h.Sessions)
	return h
}

func (h *AuthHandler) fail(c *gin.Context, op string, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	c.JSON(status, ErrorResponse{Success: false, Error: PublicMessage(err)})
}

func (h *AuthHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: message})
}

// caller resolves the authenticated user id set by AuthMiddleware.
func (h *AuthHandler) caller(c *gin.Context) (uint, bool) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token subject"})
		return 0, false
	}
	return id, true
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Register godoc
// @Summary      Register
// @Description  Create an account and start a session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RegisterRequest  true  "Account details"
// @Success      201      {object}  Envelope{data=SessionData}
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register payload", zap.Error(err))
		h.badRequest(c, "firstName, lastName, email and password are required")
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		h.badRequest(c, "dateOfBirth must be formatted as YYYY-MM-DD")
		return
	}

	result, err := h.service.Register(c.Request.Context(), RegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		Role:        person.Role(req.Role),
		Phone:       req.Phone,
		DateOfBirth: dob,
		Address:     req.Address,
	})
	if err != nil {
		h.fail(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, Envelope{
		Success: true,
		Message: "User registered successfully",
		Data:    sessionData(result),
	})
}

// Login godoc
// @Summary      Login
// @Description  Authenticate user and issue tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      LoginRequest  true  "Login credentials"
// @Success      200      {object}  Envelope{data=SessionData}
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login payload", zap.Error(err))
		h.badRequest(c, "email and password are required")
		return
	}
	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Message: "Login successful",
		Data:    sessionData(result),
	})
}

// Refresh godoc
// @Summary      Refresh Token
// @Description  Rotate refresh token and issue new tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RefreshRequest  true  "Refresh token payload"
// @Success      200      {object}  Envelope{data=TokenData}
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "refresh token is required")
		return
	}
	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Message: "Token refreshed successfully",
		Data:    TokenData{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// Logout godoc
// @Summary      Logout
// @Description  Revoke a refresh token. Succeeds whether or not the token was known.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RefreshRequest  true  "Logout payload"
// @Success      200      {object}  Envelope
// @Failure      400      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "refresh token is required")
		return
	}
	if err := h.service.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, "logout", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "Logged out successfully"})
}

// Profile godoc
// @Summary      Current user
// @Description  Profile of the authenticated user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  Envelope{data=person.Profile}
// @Failure      401      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /auth/profile [get]
func (h *AuthHandler) Profile(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	claims, _ := ClaimsFrom(c)
	profile, err := h.service.GetCurrentUser(c.Request.Context(), id, claims)
	if err != nil {
		h.fail(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: profile})
}

// UpdateProfile godoc
// @Summary      Update profile
// @Description  Change any subset of name, phone, date of birth and address. An empty phone or address clears it.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      UpdateProfileRequest  true  "Fields to change"
// @Success      200      {object}  Envelope{data=person.Profile}
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid profile payload")
		return
	}
	update := person.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
	}
	if req.DateOfBirth != nil {
		dob, err := parseDate(req.DateOfBirth)
		if err != nil || dob == nil {
			h.badRequest(c, "dateOfBirth must be formatted as YYYY-MM-DD")
			return
		}
		update.DateOfBirth = dob
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), id, update)
	if err != nil {
		h.fail(c, "update profile", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "Profile updated successfully", Data: profile})
}

// ChangePassword godoc
// @Summary      Change password
// @Description  Replace the password and revoke every refresh token of the user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      ChangePasswordRequest  true  "Current and new password"
// @Success      200      {object}  Envelope
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "currentPassword and newPassword are required")
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, "change password", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "Password changed successfully"})
}

// LogoutAll godoc
// @Summary      Logout from all devices
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  Envelope
// @Failure      401      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.service.LogoutAll(c.Request.Context(), id); err != nil {
		h.fail(c, "logout all", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "Logged out from all devices successfully"})
}

// Sessions godoc
// @Summary      Active sessions
// @Description  Number of usable refresh tokens held by the user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  Envelope{data=SessionCount}
// @Failure      401      {object}  ErrorResponse
// @Router       /auth/sessions [get]
func (h *AuthHandler) Sessions(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	n, err := h.service.ActiveSessions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "sessions", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: SessionCount{Active: n}})
}

func sessionData(r *AuthResult) SessionData {
	return SessionData{
		User:         r.User,
		Token:        r.AccessToken,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}
