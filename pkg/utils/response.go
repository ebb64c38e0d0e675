package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse define la estructura estándar para las respuestas de error.
type ErrorResponse struct {
	Message string `json:"message"`
}

// ErrorStatus asocia un error centinela a un código HTTP.
type ErrorStatus struct {
	Err    error
	Status int
}

// ErrorMap se recorre en orden; el primer errors.Is que coincide decide el código.
type ErrorMap []ErrorStatus

// StatusFor devuelve el código HTTP de err, o 500 si ningún centinela coincide.
func (m ErrorMap) StatusFor(err error) int {
	for _, e := range m {
		if errors.Is(err, e.Err) {
			return e.Status
		}
	}
	return http.StatusInternalServerError
}

// SendSuccess envía una respuesta exitosa con un payload de datos.
func SendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"data": data,
	})
}

// SendError envía una respuesta de error con un formato estandarizado.
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error": ErrorResponse{
			Message: message,
		},
	})
}

// SendDomainError traduce err con m. Los 500 no exponen el detalle interno.
func SendDomainError(c *gin.Context, m ErrorMap, err error) {
	status := m.StatusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		SendInternalServerError(c, "internal error")
		return
	}
	SendError(c, status, err.Error())
}

// --- Helpers específicos para errores comunes ---

func SendBadRequest(c *gin.Context, message string) {
	SendError(c, http.StatusBadRequest, message)
}

func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, message)
}

func SendInternalServerError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, message)
}
