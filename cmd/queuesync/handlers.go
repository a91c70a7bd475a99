package main

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"queuesync/internal/constants"
	"queuesync/internal/errors"
	"queuesync/internal/httputil"
	"queuesync/internal/logfields"
	"queuesync/internal/privacy"
	"queuesync/internal/tracing"
	"queuesync/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type enqueueRequest struct {
	ServiceType              string `json:"serviceType"`
	EstimatedDurationMinutes *int   `json:"estimatedDurationMinutes"`
	EstimatedDuration        *int   `json:"estimatedDuration"`
}

type completeRequest struct {
	ActualDurationMinutes *int `json:"actualDurationMinutes"`
	ActualDuration        *int `json:"actualDuration"`
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

type aiResponseRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

var errEmptyBody = stderrors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := validation.ValidateHTTPRequestSize(r, constants.MaxRequestBodyBytes); err != nil {
		return err
	}
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) {
			err = errEmptyBody
		}
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("Request body must be a JSON object")
	}
	return nil
}

// firstInt returns the first non-nil value, so the original field names
// keep working next to the explicit *Minutes ones.
func firstInt(field string, values ...*int) (int, error) {
	for _, v := range values {
		if v != nil {
			return *v, nil
		}
	}
	return 0, errors.NewValidationError(field, "", "is required")
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "ok",
			"clients": s.hub.ClientCount(),
		}
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		httputil.WriteJSON(w, status, body)
	}
}

func (s *Server) handleQueueStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := s.queue.CurrentSnapshot(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		httputil.WriteJSON(w, http.StatusOK, snapshot)
	}
}

func (s *Server) handleEnqueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		minutes, err := firstInt("estimatedDurationMinutes", req.EstimatedDurationMinutes, req.EstimatedDuration)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		entry, err := s.queue.Enqueue(r.Context(), req.ServiceType, minutes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, entry)
	}
}

func (s *Server) handleComplete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.ValidateEntryID(mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		actual, err := s.actualDuration(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.queue.Complete(r.Context(), id, actual); err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

func (s *Server) handleCompleteNext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actual, err := s.actualDuration(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		entry, err := s.queue.CompleteOldest(r.Context(), actual)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, entry)
	}
}

func (s *Server) actualDuration(w http.ResponseWriter, r *http.Request) (int, error) {
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return 0, err
	}
	return firstInt("actualDurationMinutes", req.ActualDurationMinutes, req.ActualDuration)
}

func (s *Server) handleWaiting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.queue.ListWaiting(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleAnalytics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		samples, err := s.queue.Analytics(r.Context(), mux.Vars(r)["date"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, samples)
	}
}

func (s *Server) handleChatHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := s.chat.History(r.Context(), s.chat.AdminUserID(), constants.DefaultChatHistoryLimit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, history)
	}
}

func (s *Server) handleChatMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.chat.SendFromAdmin(r.Context(), req.Message)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) handleAIResponseWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, constants.MaxRequestBodyBytes); err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)

		body, err := verifySignature(r, s.cfg.Chat.WebhookSecret, constants.WebhookSignatureHeader)
		if err != nil {
			s.logger.WithError(err).WithField(logfields.RequestID, tracing.GetRequestID(r.Context())).
				Warn("Webhook signature verification failed")
			s.writeError(w, r, errors.New(errors.ErrCodeAuthentication, err.Error()).
				WithUserMessage("Invalid webhook signature"))
			return
		}

		var req aiResponseRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body").
				WithUserMessage("Request body must be a JSON object"))
			return
		}

		if _, err := s.chat.Deliver(r.Context(), req.UserID, req.Message); err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// writeError logs server-side failures and answers with the mapped status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			logfields.RequestID: tracing.GetRequestID(r.Context()),
			logfields.ErrorCode: errors.GetCode(err),
		}).Error("Request failed")
	} else {
		s.logger.WithError(err).WithFields(privacy.MaskSensitiveFields(logrus.Fields{
			logfields.RequestID: tracing.GetRequestID(r.Context()),
			logfields.ErrorCode: errors.GetCode(err),
		})).Debug("Request rejected")
	}
	httputil.WriteError(w, r, err)
}
