package apicommon

import (
	"context"
	"encoding/json"
	"net/http"

	"go.vocdoni.io/dvote/log"
)

// UserIDFromContext retrieves the user id from the context provided, expected
// to be the context of a request handled by the authenticator middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDMetadataKey).(string)
	return userID, ok && userID != ""
}

// HTTPWriteJSON helper function allows to write a JSON response.
func HTTPWriteJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}
