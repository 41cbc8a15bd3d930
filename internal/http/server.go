package http

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"programhub/internal/auth"
	"programhub/internal/config"
	"programhub/internal/db"
	"programhub/internal/eligibility"
	"programhub/internal/match"
	"programhub/internal/model"
	"programhub/internal/provision"
)

type Server struct {
	cfg          config.Config
	store        *db.Store
	service      *provision.Service
	logger       *zap.Logger
	jwtPublicKey *rsa.PublicKey
	redis        *redis.Client
	cacheTTL     time.Duration
}

func NewServer(cfg config.Config, store *db.Store, service *provision.Service, logger *zap.Logger, redisClient *redis.Client) (*Server, error) {
	publicKey, err := auth.ParseRSAPublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:          cfg,
		store:        store,
		service:      service,
		logger:       logger,
		jwtPublicKey: publicKey,
		redis:        redisClient,
		cacheTTL:     cfg.EligibilityCacheTTL,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).Post("/programs", s.handleCreateProgram)
	r.With(s.authMiddleware).Get("/programs", s.handleListPrograms)
	r.With(s.authMiddleware).Get("/programs/{programId}", s.handleGetProgram)
	r.With(s.authMiddleware).Patch("/programs/{programId}", s.handleUpdateProgram)
	r.With(s.authMiddleware).Delete("/programs/{programId}", s.handleDeleteProgram)
	r.With(s.authMiddleware).Post("/programs/{programId}/cohorts", s.handleAddCohort)

	r.With(s.authMiddleware).Post("/preview/eligibility", s.handlePreviewEligibility)
	r.With(s.authMiddleware).Post("/preview/assignments", s.handlePreviewAssignments)

	r.With(s.authMiddleware).Get("/facilitators", s.handleListFacilitators)
	r.With(s.authMiddleware).Get("/locations", s.handleListLocations)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.jwtPublicKey, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Program handlers

func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req provision.CreateProgramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.service.Provision(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		s.logger.Info("program provisioned",
			zap.String("programId", result.Program.ID),
			zap.String("userId", claims.UserID))
	}
	writeData(w, http.StatusCreated, result)
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.service.ListPrograms(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if programs == nil {
		programs = []model.Program{}
	}
	writeData(w, http.StatusOK, programs)
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := programIDParam(w, r)
	if !ok {
		return
	}
	result, err := s.service.Hydrate(r.Context(), programID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := programIDParam(w, r)
	if !ok {
		return
	}
	var req provision.CreateProgramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.service.Update(r.Context(), programID, req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	programID, ok := programIDParam(w, r)
	if !ok {
		return
	}
	if err := s.service.Archive(r.Context(), programID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddCohort(w http.ResponseWriter, r *http.Request) {
	programID, ok := programIDParam(w, r)
	if !ok {
		return
	}
	var req provision.AddCohortRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.service.AddCohort(r.Context(), programID, req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

// Preview handlers. These run the same pure filter and matcher functions as
// the authoritative provisioning path so wizard previews cannot drift from
// what the server later persists.

type previewEligibilityRequest struct {
	Region       string                   `json:"region"`
	HireDateFrom string                   `json:"hireDateFrom"`
	HireDateTo   string                   `json:"hireDateTo"`
	Sessions     []provision.SessionInput `json:"sessions"`
}

type previewEligibilityResponse struct {
	Participants []model.Participant `json:"participants"`
	Count        int                 `json:"count"`
}

func (s *Server) handlePreviewEligibility(w http.ResponseWriter, r *http.Request) {
	var req previewEligibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var from, to *time.Time
	if req.HireDateFrom != "" {
		parsed, err := time.Parse("2006-01-02", req.HireDateFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hire_date_from")
			return
		}
		from = &parsed
	}
	if req.HireDateTo != "" {
		parsed, err := time.Parse("2006-01-02", req.HireDateTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hire_date_to")
			return
		}
		to = &parsed
	}

	population, err := s.activeParticipants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	sessions := make([]model.Session, 0, len(req.Sessions))
	for _, input := range req.Sessions {
		sessions = append(sessions, model.Session{ParticipantTypes: input.ParticipantTypes})
	}
	filter := eligibility.FromSessions(req.Region, from, to, sessions)
	eligible := eligibility.Apply(population, filter)
	writeData(w, http.StatusOK, previewEligibilityResponse{Participants: eligible, Count: len(eligible)})
}

type previewAssignmentsRequest struct {
	CohortNames []string                 `json:"cohortNames"`
	Sessions    []provision.SessionInput `json:"sessions"`
}

type previewFacilitatorAssignment struct {
	CohortName string `json:"cohortName"`
	SessionID  string `json:"sessionId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

type previewLocationAssignment struct {
	CohortName   string `json:"cohortName"`
	SessionID    string `json:"sessionId"`
	LocationName string `json:"locationName,omitempty"`
	Description  string `json:"description,omitempty"`
}

type previewAssignmentsResponse struct {
	FacilitatorAssignments []previewFacilitatorAssignment `json:"facilitatorAssignments"`
	LocationAssignments    []previewLocationAssignment    `json:"locationAssignments"`
	UnmatchedFacilitators  []match.UnmatchedFacilitator   `json:"unmatchedFacilitators"`
	UnmatchedLocations     []match.UnmatchedLocation      `json:"unmatchedLocations"`
}

func (s *Server) handlePreviewAssignments(w http.ResponseWriter, r *http.Request) {
	var req previewAssignmentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.CohortNames) == 0 {
		req.CohortNames = []string{""}
	}

	facilitators, err := s.store.Queries.ListFacilitators(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	locations, err := s.store.Queries.ListLocations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	facilitatorPool := match.SortFacilitators(facilitators)
	locationPool := match.SortLocations(locations)

	resp := previewAssignmentsResponse{
		FacilitatorAssignments: []previewFacilitatorAssignment{},
		LocationAssignments:    []previewLocationAssignment{},
		UnmatchedFacilitators:  []match.UnmatchedFacilitator{},
		UnmatchedLocations:     []match.UnmatchedLocation{},
	}

	roundRobin := 0
	for _, cohortName := range req.CohortNames {
		for _, input := range req.Sessions {
			session := model.Session{
				ID:                  input.ID,
				GroupSizeMax:        input.GroupSizeMax,
				FacilitatorSkills:   input.FacilitatorSkills,
				LocationTypes:       input.LocationTypes,
				RequiresFacilitator: input.RequiresFacilitator,
			}
			if session.RequiresFacilitator {
				chosen, next, unmatched := match.Facilitator(cohortName, session, facilitatorPool, roundRobin)
				roundRobin = next
				if unmatched != nil {
					resp.UnmatchedFacilitators = append(resp.UnmatchedFacilitators, *unmatched)
				} else {
					resp.FacilitatorAssignments = append(resp.FacilitatorAssignments, previewFacilitatorAssignment{
						CohortName: cohortName,
						SessionID:  input.ID,
						Email:      chosen.Email,
						Name:       chosen.Name,
					})
				}
			}
			chosen, placeholder, unmatched := match.Location(cohortName, session, locationPool)
			switch {
			case unmatched != nil:
				resp.UnmatchedLocations = append(resp.UnmatchedLocations, *unmatched)
			case chosen != nil:
				resp.LocationAssignments = append(resp.LocationAssignments, previewLocationAssignment{
					CohortName:   cohortName,
					SessionID:    input.ID,
					LocationName: chosen.Name,
				})
			default:
				resp.LocationAssignments = append(resp.LocationAssignments, previewLocationAssignment{
					CohortName:  cohortName,
					SessionID:   input.ID,
					Description: placeholder,
				})
			}
		}
	}
	writeData(w, http.StatusOK, resp)
}

// Resource pool handlers (read-only collaborator boundary)

func (s *Server) handleListFacilitators(w http.ResponseWriter, r *http.Request) {
	facilitators, err := s.store.Queries.ListFacilitators(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if facilitators == nil {
		facilitators = []model.Facilitator{}
	}
	writeData(w, http.StatusOK, facilitators)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.Queries.ListLocations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if locations == nil {
		locations = []model.Location{}
	}
	writeData(w, http.StatusOK, locations)
}

// Participant population cache. The active-participant scan is the one
// expensive read in this service; previews tolerate a slightly stale
// snapshot, so it sits behind a short redis TTL when redis is configured.

const participantCacheKey = "programhub:participants:active"

func (s *Server) activeParticipants(ctx context.Context) ([]model.Participant, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, participantCacheKey).Bytes(); err == nil {
			var population []model.Participant
			if err := json.Unmarshal(cached, &population); err == nil {
				return population, nil
			}
		}
	}
	population, err := s.store.Queries.ListActiveParticipants(ctx)
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		if encoded, err := json.Marshal(population); err == nil {
			_ = s.redis.Set(ctx, participantCacheKey, encoded, s.cacheTTL).Err()
		}
	}
	return population, nil
}

// Error mapping

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var validation *provision.ValidationError
	if errors.As(err, &validation) {
		writeErrorDetails(w, http.StatusBadRequest, "validation_failed", validation)
		return
	}
	var notFound *provision.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error")
}

// Helpers

func programIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	programID := chi.URLParam(r, "programId")
	if _, err := uuid.Parse(programID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_program_id")
		return "", false
	}
	return programID, true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": code})
}

func writeErrorDetails(w http.ResponseWriter, status int, code string, details interface{}) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": code, "details": details})
}
