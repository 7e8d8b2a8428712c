package xhttp

import "github.com/valyala/fasthttp"

const (
	StatusOK                  = fasthttp.StatusOK
	StatusCreated             = fasthttp.StatusCreated
	StatusBadRequest          = fasthttp.StatusBadRequest
	StatusNotFound            = fasthttp.StatusNotFound
	StatusConflict            = fasthttp.StatusConflict
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusInternalServerError = fasthttp.StatusInternalServerError
)

// StatusText returns the standard reason phrase for code.
func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}
