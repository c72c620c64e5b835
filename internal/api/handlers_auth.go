package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clinicdesk/scheduling-ledger/internal/identity"
)

func registerHandler(gateway *identity.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		userID, err := gateway.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, RegisterResponse{UserID: userID})
	}
}

func loginHandler(gateway *identity.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		token, err := gateway.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{Token: token})
	}
}

func logoutHandler(gateway *identity.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" {
			writeError(w, http.StatusBadRequest, "token_invalid", "missing bearer token")
			return
		}

		if err := gateway.Logout(r.Context(), token); err != nil {
			handleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
