package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hyperjump/emaki/internal/fileid"
	"github.com/hyperjump/emaki/internal/imagegen"
	"github.com/hyperjump/emaki/internal/models"
	"github.com/hyperjump/emaki/internal/scene"
	"github.com/hyperjump/emaki/internal/storage"
	"go.uber.org/zap"
)

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, scene.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scene.ErrSimilarity), errors.Is(err, imagegen.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req models.SegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.pipeline.Segment(r.Context(), req.Text, req.Threshold)
	if err != nil {
		s.fail(w, "segment", err)
		return
	}
	s.logger.Debug("segment request", zap.Int("sentences", resp.Sentences), zap.Int("scenes", len(resp.Scenes)))
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var input models.StoryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("create story request", zap.String("title", input.Title), zap.Bool("skip_images", input.SkipImages))

	if input.ID != "" {
		if fileid.IsFileStory(input.ID) {
			s.respondError(w, http.StatusBadRequest, (&models.ValidationError{Field: "id", Message: "prefix " + fileid.Prefix + " is reserved for inbox files"}).Error())
			return
		}
		if err := models.ValidateStoryID(input.ID); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if strings.TrimSpace(input.Content) == "" {
			s.respondError(w, http.StatusBadRequest, (&models.ValidationError{Field: "content", Message: "cannot be empty"}).Error())
			return
		}
		if input.ID == "" {
			input.ID = uuid.New().String()
		}
		go func() {
			if _, err := s.pipeline.Run(s.runs, &input); err != nil {
				s.logger.Error("storyboard failed", zap.String("id", input.ID), zap.Error(err))
			}
		}()
		s.respondJSON(w, http.StatusAccepted, map[string]string{"id": input.ID, "status": models.StatusProcessing})
		return
	}

	story, err := s.pipeline.Run(r.Context(), &input)
	if err != nil {
		s.fail(w, "create story", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, story)
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	stories, err := s.storage.ListStories(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list stories", err)
		return
	}
	if stories == nil {
		stories = []*models.Story{}
	}
	total, err := s.storage.CountStories(r.Context())
	if err != nil {
		s.fail(w, "count stories", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stories": stories,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	detail, err := s.pipeline.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get story", err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete story request", zap.String("id", id))
	if err := s.pipeline.DeleteStory(r.Context(), id); err != nil {
		s.fail(w, "delete story", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSceneImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 1 {
		s.respondError(w, http.StatusBadRequest, "scene index must be a positive integer")
		return
	}
	sc, err := s.storage.GetScene(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		s.fail(w, "get scene", err)
		return
	}
	if sc.ImagePath == "" {
		s.respondError(w, http.StatusNotFound, "image not generated")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, sc.ImagePath)
}

func (s *Server) handleSearchScenes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fuzzy, _ := strconv.ParseBool(q.Get("fuzzy"))
	resp, err := s.pipeline.SearchScenes(r.Context(), q.Get("q"), queryInt(r, "limit", 10), fuzzy)
	if err != nil {
		s.fail(w, "search scenes", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stories, err := s.storage.CountStories(ctx)
	if err != nil {
		s.fail(w, "status: count stories", err)
		return
	}
	scenes, err := s.storage.CountScenes(ctx)
	if err != nil {
		s.fail(w, "status: count scenes", err)
		return
	}
	resp := map[string]interface{}{
		"stories": stories,
		"scenes":  scenes,
	}
	if s.sceneIndex != nil {
		if n, err := s.sceneIndex.DocCount(); err == nil {
			resp["indexed_scenes"] = n
		}
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"image_provider":       s.config.Image.Provider,
			"image_model":          s.config.Image.Model,
			"image_style":          s.config.Image.Style,
			"threshold":            s.config.Segmentation.ThresholdOrDefault(),
			"database_path":        s.config.Storage.DatabasePath,
			"bleve_index_path":     s.config.Storage.BleveIndexPath,
			"output_dir":           s.config.Storage.OutputDir,
		}
		diskBytes, err := storage.DiskUsageBytes(
			s.config.Storage.DatabasePath,
			s.config.Storage.BleveIndexPath,
			s.config.Storage.OutputDir,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// fail logs err and writes it with the status that matches its kind.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
