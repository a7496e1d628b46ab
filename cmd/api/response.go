package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"enquiryflow/validation"
)

// envelope is the body shape of every API response.
type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    any                    `json:"data,omitempty"`
	Count   *int                   `json:"count,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondList(c *gin.Context, data any, count int) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

func respondFail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// respondInvalid reports every field violation carried by err. It returns
// false when err holds none.
func respondInvalid(c *gin.Context, err error) bool {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  verrs,
	})
	return true
}

// respondServerError hides the cause outside development.
func (s *server) respondServerError(c *gin.Context, message string, err error) {
	s.log.WithError(err).WithField("path", c.FullPath()).Error(message)
	body := envelope{Success: false, Message: message}
	if s.debug {
		body.Error = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}
