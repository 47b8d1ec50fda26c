package llmclient

import "net/http"

// isTransientStatus reports whether an HTTP status is worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// firstPositiveFloat prefers the per-request value over the model default.
func firstPositiveFloat(req, model float64) float64 {
	if req > 0 {
		return req
	}
	return model
}

func firstPositiveInt(req, model int) int {
	if req > 0 {
		return req
	}
	return model
}
