package server

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/askiada/molsim/internal/sessionstore"
	"github.com/askiada/molsim/pkg/artifact"
	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

// maxBody bounds the JSON bodies read by the server.
const maxBody = 8 << 20

var errBadRequest = errors.New("bad request")

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("unable to encode response")
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	s.writeJSON(w, status, wire.ErrorBody{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, sessionstore.ErrNotFound), errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, workflow.ErrValidation), errors.Is(err, artifact.ErrNamespace):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return errors.Wrapf(errBadRequest, "unable to read body: %v", err)
	}

	if err := sonic.Unmarshal(data, v); err != nil {
		return errors.Wrapf(errBadRequest, "invalid json body: %v", err)
	}

	return nil
}
