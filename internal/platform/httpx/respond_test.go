package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masa-erp/masa/internal/shared"
)

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("rbac: require: %w", shared.ErrForbidden), http.StatusForbidden},
		{shared.ErrRoleNotFound, http.StatusNotFound},
		{shared.ErrUnknownPermission, http.StatusBadRequest},
		{shared.ErrRateLimited, http.StatusTooManyRequests},
		{shared.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, "error %v", tc.err)

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestNoCacheHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	NoCache(rr)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
}
