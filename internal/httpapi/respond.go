package httpapi

import (
	"encoding/json"
	"net/http"
)

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// RespondWithValidation reports which fields of a request were rejected.
func RespondWithValidation(w http.ResponseWriter, message string, details []string) {
	RespondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
		"success": false,
		"message": message,
		"details": details,
	})
}
