package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-faceid/images"
	"github.com/pkg/errors"
)

// FormField is the form field carrying the base64 image.
const FormField = "image_data"

// maxMultipartMemory is the part of a multipart body kept in memory.
const maxMultipartMemory = 8 << 20

// StatusClientClosedRequest is answered when the client goes away before the result is ready.
const StatusClientClosedRequest = 499

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string   `json:"status"`
	Classes []string `json:"classes"`
}

// classifyImage handles POST /classify_image.
func (s *Server) classifyImage(c *gin.Context) {
	if err := parseForm(c.Request); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, http.StatusRequestEntityTooLarge, errors.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.fail(c, http.StatusBadRequest, errors.Wrap(err, "parse form"))
		return
	}

	payload, ok := c.GetPostForm(FormField)
	if !ok || payload == "" {
		s.fail(c, http.StatusBadRequest, errors.Errorf("missing form field %q", FormField))
		return
	}

	src, err := images.FromBase64(payload)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	results, err := s.engine.Classify(ctx, src)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}

	c.Set("faces", len(results))
	c.JSON(http.StatusOK, results)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Classes: s.engine.Classes().Names(),
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Profiler().Snapshot())
}

// parseForm parses urlencoded and multipart bodies.
func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// statusFor maps a classification error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, images.ErrInvalidPayload), errors.Is(err, images.ErrUndecodable):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes a JSON error. Server errors are logged and their details withheld.
func (s *Server) fail(c *gin.Context, status int, err error) {
	msg := err.Error()
	if status == StatusClientClosedRequest {
		s.logger.WithField("path", c.Request.URL.Path).Debug("client went away")
	} else if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("classification failed")
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}
