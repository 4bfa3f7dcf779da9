package person

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IDRequest binds the :id path segment.
type IDRequest struct {
	ID uint `uri:"id" binding:"required,min=1"`
}

// SetActiveRequest toggles the account-active flag.
// @Description payload to activate or deactivate an account
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PersonHandler exposes the administrative person endpoints. It expects to be mounted
// behind authentication and an admin role check.
type PersonHandler struct {
	router  *gin.RouterGroup
	service PersonService
	logger  *zap.Logger
}

func NewPersonHandler(router *gin.RouterGroup, service PersonService, logger *zap.Logger) *PersonHandler {
	h := &PersonHandler{router: router, service: service, logger: logger}
	persons := h.router.Group("/persons")
	persons.GET("", h.ReadPersonByEmail)
	persons.GET("/:id", h.ReadPersonByID)
	persons.PUT("/:id/active", h.SetActive)
	persons.DELETE("/:id", h.DeletePerson)
	return h
}

func (h *PersonHandler) pathID(c *gin.Context) (uint, bool) {
	var uri IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return uri.ID, true
}

// respond writes the admin error body for err; the store error itself is only logged.
func (h *PersonHandler) respond(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrPersonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
	case errors.Is(err, ErrInvalidEmailFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("admin "+op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op})
	}
}

// ReadPersonByID godoc
// @Summary      Get Person by ID
// @Description  Fetch a person by their ID
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Person ID"
// @Success      200  {object}  Profile
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /persons/{id} [get]
func (h *PersonHandler) ReadPersonByID(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	profile, err := h.service.ReadPersonByID(c.Request.Context(), id)
	if err != nil {
		h.respond(c, "read person", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ReadPersonByEmail godoc
// @Summary      Get Person by Email
// @Description  Fetch a person by their email
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        email  query     string  true  "Email address"
// @Success      200    {object}  Profile
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /persons [get]
func (h *PersonHandler) ReadPersonByEmail(c *gin.Context) {
	email, present := c.GetQuery("email")
	if !present || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter required"})
		return
	}
	profile, err := h.service.ReadPersonByEmail(c.Request.Context(), email)
	if err != nil {
		h.respond(c, "read person", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SetActive godoc
// @Summary      Activate or deactivate an account
// @Description  Deactivated accounts cannot log in or refresh tokens
// @Tags         persons
// @Accept       json
// @Security     BearerAuth
// @Param        id       path  int               true  "Person ID"
// @Param        payload  body  SetActiveRequest  true  "Account status"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /persons/{id}/active [put]
func (h *PersonHandler) SetActive(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid account status payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "active flag required"})
		return
	}
	if err := h.service.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		h.respond(c, "update account status", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeletePerson godoc
// @Summary      Delete Person
// @Description  Soft-delete a person; their refresh tokens stop working immediately
// @Tags         persons
// @Security     BearerAuth
// @Param        id   path  int  true  "Person ID"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /persons/{id} [delete]
func (h *PersonHandler) DeletePerson(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.service.DeletePerson(c.Request.Context(), id); err != nil {
		h.respond(c, "delete person", err)
		return
	}
	c.Status(http.StatusNoContent)
}
