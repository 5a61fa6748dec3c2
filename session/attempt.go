package session

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-storefront-client/httpclient"
	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
)

// Attempt tracks one logical request across its original send and at most one
// replay. The retried flag lives here rather than on the request so that
// concurrent requests never share it.
type Attempt struct {
	ID         string
	Request    *http.Request
	Credential string // Access token attached to the most recent send, "" when none
	Retried    bool
}

func NewAttempt(req *http.Request) *Attempt {
	id := req.Header.Get(httpclient.RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	return &Attempt{
		ID:      id,
		Request: req,
	}
}

// Dispatcher sends an attempt through the credential and response hooks again
type Dispatcher func(*Attempt) (*http.Response, error)

// rewind returns a copy of the original request with a fresh body
func (a *Attempt) rewind() (*http.Request, error) {
	req := a.Request.Clone(a.Request.Context())
	if a.Request.Body == nil || a.Request.Body == http.NoBody {
		return req, nil
	}
	if a.Request.GetBody == nil {
		return nil, apperrors.ErrRequestNotReplayable
	}
	body, err := a.Request.GetBody()
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrRequestNotReplayable, "rewind: %v", err)
	}
	req.Body = body
	return req, nil
}

func bearerOf(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}
