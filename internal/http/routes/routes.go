package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/status-backend/internal/http/status"
)

// Register wires all HTTP routes into the provided API router.
func Register(api huma.API) {
	status.Register(api)
}
