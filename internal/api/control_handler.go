package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"vigil/internal/root"
)

// ControlHandler exposes the watch lifecycle operations as plain JSON
// endpoints. The transport layer calling these is expected to report
// client disconnects so held subscriptions get released.
type ControlHandler struct {
	Registry *root.Registry
	Sessions *root.Sessions
}

type watchRequest struct {
	Path string `json:"path"`
}

type watchResponse struct {
	Watch string `json:"watch"`
}

type triggerRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

type subscribeRequest struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	ClientID string `json:"client_id"`
}

type subscribeResponse struct {
	Subscription string `json:"subscription"`
}

type unsubscribeRequest struct {
	Subscription string `json:"subscription"`
}

type deletedResponse struct {
	Deleted bool `json:"deleted"`
}

type disconnectRequest struct {
	ClientID string `json:"client_id"`
}

func decodeBody(r *http.Request, target any) *apiError {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	return nil
}

func mapRootError(err error) *apiError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, root.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, root.ErrInvariantViolation):
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	case errors.Is(err, root.ErrTooManyRoots):
		return &apiError{Status: http.StatusTooManyRequests, Message: err.Error()}
	default:
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	}
}

func (h *ControlHandler) watch(w http.ResponseWriter, r *http.Request) *apiError {
	var request watchRequest
	if apiErr := decodeBody(r, &request); apiErr != nil {
		return apiErr
	}
	if request.Path == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "path is required"}
	}

	watched, err := h.Registry.Watch(request.Path)
	if err != nil {
		return mapRootError(err)
	}
	writeJSON(w, http.StatusOK, watchResponse{Watch: watched.Path()})
	return nil
}

func (h *ControlHandler) unwatch(w http.ResponseWriter, r *http.Request) *apiError {
	var request watchRequest
	if apiErr := decodeBody(r, &request); apiErr != nil {
		return apiErr
	}

	if err := h.Registry.Unwatch(request.Path); err != nil {
		if errors.Is(err, root.ErrTeardownPartial) {
			// the root is gone either way; report success
			writeJSON(w, http.StatusOK, watchResponse{Watch: request.Path})
			return nil
		}
		return mapRootError(err)
	}
	writeJSON(w, http.StatusOK, watchResponse{Watch: request.Path})
	return nil
}

func (h *ControlHandler) triggers(w http.ResponseWriter, r *http.Request) *apiError {
	var request triggerRequest
	if apiErr := decodeBody(r, &request); apiErr != nil {
		return apiErr
	}
	if request.Path == "" || request.Name == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "path and name are required"}
	}

	switch r.Method {
	case http.MethodPost:
		if err := h.Registry.AddTrigger(request.Path, request.Name); err != nil {
			return mapRootError(err)
		}
		writeJSON(w, http.StatusOK, deletedResponse{Deleted: false})
	case http.MethodDelete:
		if err := h.Registry.RemoveTrigger(request.Path, request.Name); err != nil {
			if errors.Is(err, root.ErrNotFound) {
				writeJSON(w, http.StatusOK, deletedResponse{Deleted: false})
				return nil
			}
			return mapRootError(err)
		}
		writeJSON(w, http.StatusOK, deletedResponse{Deleted: true})
	default:
		return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}
	return nil
}

func (h *ControlHandler) subscriptions(w http.ResponseWriter, r *http.Request) *apiError {
	switch r.Method {
	case http.MethodPost:
		var request subscribeRequest
		if apiErr := decodeBody(r, &request); apiErr != nil {
			return apiErr
		}
		if request.Path == "" || request.ClientID == "" {
			return &apiError{Status: http.StatusBadRequest, Message: "path and client_id are required"}
		}
		sub, err := h.Sessions.Subscribe(request.ClientID, request.Path, request.Name)
		if err != nil {
			return mapRootError(err)
		}
		writeJSON(w, http.StatusOK, subscribeResponse{Subscription: sub.ID})
	case http.MethodDelete:
		var request unsubscribeRequest
		if apiErr := decodeBody(r, &request); apiErr != nil {
			return apiErr
		}
		if err := h.Sessions.Unsubscribe(request.Subscription); err != nil {
			if errors.Is(err, root.ErrNotFound) {
				writeJSON(w, http.StatusOK, deletedResponse{Deleted: false})
				return nil
			}
			return mapRootError(err)
		}
		writeJSON(w, http.StatusOK, deletedResponse{Deleted: true})
	default:
		return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}
	return nil
}

func (h *ControlHandler) disconnect(w http.ResponseWriter, r *http.Request) *apiError {
	var request disconnectRequest
	if apiErr := decodeBody(r, &request); apiErr != nil {
		return apiErr
	}
	if request.ClientID == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "client_id is required"}
	}
	h.Sessions.Disconnect(request.ClientID)
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: true})
	return nil
}
