package api

import (
	"io"
	"net/http"

	"github.com/vibecoding/magazine-backend/api/apicommon"
	"github.com/vibecoding/magazine-backend/billing"
	"github.com/vibecoding/magazine-backend/errors"
)

// readBody reads the request body up to apicommon.MaxBodySize bytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, apicommon.MaxBodySize))
	if err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return nil, false
	}
	return body, true
}

// writeFlowResult writes the outcome of a payment flow, the response on
// success or the error carrying its checklist.
func writeFlowResult(w http.ResponseWriter, resp *billing.Response, err *errors.Error) {
	if err != nil {
		err.Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, resp)
}
