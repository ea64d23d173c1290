package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go-medical-reservation/pkg/response"
	"go-medical-reservation/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// bindJSON decodes the request body into req and validates it. On failure the
// response is already written and false is returned.
func bindJSON(w http.ResponseWriter, r *http.Request, v *validator.CustomValidator, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	if err := v.Validate(req); err != nil {
		response.ValidationError(w, v.FormatValidationErrors(err))
		return false
	}
	return true
}

func uuidVar(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid "+label, nil)
		return uuid.Nil, false
	}
	return id, true
}

func intVar(w http.ResponseWriter, r *http.Request, name, label string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "Invalid "+label, nil)
		return 0, false
	}
	return id, true
}
