package status

// Message is the fixed body of a successful status check.
const Message = "Backend rodando com sucesso!"

// Response is the status payload.
type Response struct {
	Message string `json:"message" doc:"Backend status message" example:"Backend rodando com sucesso!"`
}

// Output is the huma response wrapper for GET /status.
type Output struct {
	Body Response
}
