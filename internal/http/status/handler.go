package status

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/janisto/status-backend/internal/platform/logging"
)

// Register wires the status route into the provided API.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Report that the backend is running",
		Tags:        []string{"Status"},
	}, getHandler)
}

func getHandler(ctx context.Context, _ *struct{}) (*Output, error) {
	applog.LogInfo(ctx, "status check", zap.String("path", "/status"))
	return &Output{Body: Response{Message: Message}}, nil
}
