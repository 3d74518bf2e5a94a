package server

import (
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/askiada/molsim/pkg/artifact"
	"github.com/askiada/molsim/pkg/orchestrator"
	"github.com/askiada/molsim/pkg/wire"
)

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req wire.StartRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}
	if err := orchestrator.ValidateEmail(req.Email); err != nil {
		s.writeError(w, r, err)

		return
	}

	appID := chi.URLParam(r, "appId")
	sess, err := s.sessions.Create(r.Context(), appID, req.Email)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.logger.Info().Str("run_id", sess.ID).Str("app_id", appID).Msg("session created")
	s.writeJSON(w, http.StatusOK, wire.StartResponse{SessionID: sess.ID})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) upsertOutputs(w http.ResponseWriter, r *http.Request) {
	var outputs wire.Outputs
	if err := decode(r, &outputs); err != nil {
		s.writeError(w, r, err)

		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Upsert(r.Context(), id, outputs); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.hub.Notify(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var statuses wire.StatusRequest
	if err := decode(r, &statuses); err != nil {
		s.writeError(w, r, err)

		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.sessions.SetStatus(r.Context(), id, statuses); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.hub.Notify(id)
	w.WriteHeader(http.StatusNoContent)
}

// storeArtifact streams the body into the artifact store. The optional filename query parameter gives the
// extension of the stored file.
func (s *Server) storeArtifact(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var opts []artifact.StoreOption
	if name := r.URL.Query().Get("filename"); name != "" {
		opts = append(opts, artifact.Extension(path.Ext(name)))
	}

	filename, err := s.artifacts.StoreStream(r.Body, namespace, opts...)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.logger.Info().Str("namespace", namespace).Str("filename", filename).Msg("artifact stored")
	s.writeJSON(w, http.StatusCreated, wire.ArtifactResponse{
		Filename: filename,
		URL:      "/artifacts/" + url.PathEscape(namespace) + "/" + url.PathEscape(filename),
	})
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	f, err := s.artifacts.Open(chi.URLParam(r, "namespace"), chi.URLParam(r, "filename"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("artifact download interrupted")
	}
}
