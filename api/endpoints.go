package api

import (
	"fmt"
	"strings"
)

// Endpoint paths, relative to the API base URL
const (
	// Credential endpoints: never carry a bearer token and never trigger a refresh
	EndpointToken        = "token/"
	EndpointTokenRefresh = "token/refresh/"
	EndpointRegister     = "register/"

	// Profile
	EndpointUser = "user/"

	// Cart
	EndpointCart      = "cart/"
	EndpointCartAdd   = "cart/add/"
	EndpointCartClear = "cart/clear/"

	// Orders
	EndpointOrders      = "orders/"
	EndpointOrderCreate = "orders/create/"
)

var credentialEndpoints = []string{EndpointToken, EndpointTokenRefresh, EndpointRegister}

// IsCredentialEndpoint reports whether the URL path targets a login, registration or
// token issuance endpoint. Matching is on path segments so "/api/token/" and
// "/api/token/refresh/" both match while "/api/tokens/" does not.
func IsCredentialEndpoint(path string) bool {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for _, endpoint := range credentialEndpoints {
		if strings.HasSuffix(path, "/"+endpoint) {
			return true
		}
	}
	return false
}

func CartUpdatePath(itemID int64) string {
	return fmt.Sprintf("cart/update/%d/", itemID)
}

func CartRemovePath(itemID int64) string {
	return fmt.Sprintf("cart/remove/%d/", itemID)
}

func OrderPath(orderID int64) string {
	return fmt.Sprintf("orders/%d/", orderID)
}

func OrderCancelPath(orderID int64) string {
	return fmt.Sprintf("orders/%d/cancel/", orderID)
}
