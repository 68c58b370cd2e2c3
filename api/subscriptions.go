package api

import (
	"net/http"

	"github.com/vibecoding/magazine-backend/api/apicommon"
	"github.com/vibecoding/magazine-backend/errors"
)

// subscriptionStatusHandler returns whether the authenticated user has an
// active subscription, derived from the payments ledger.
//
//	GET /subscriptions/me
func (a *API) subscriptionStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := apicommon.UserIDFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	status, cl, err := a.subscriptions.CustomerStatus(userID)
	if err != nil {
		errors.ErrStorageFailed.WithErr(err).WithChecklist(cl).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &SubscriptionStatusResponse{Status: status, Checklist: cl.Items()})
}
