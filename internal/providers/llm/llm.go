package llm

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one conversational turn passed to the generation model.
type Turn struct {
	Role Role
	Text string
}

// Request is one generation call. JSONOnly asks the provider for strict
// JSON-mode output; callers still validate the payload themselves.
type Request struct {
	System      string
	Turns       []Turn
	Temperature float32
	JSONOnly    bool
}

type Provider interface {
	// Generate returns the full response text.
	Generate(ctx context.Context, req Request) (string, error)
	// Stream returns a stream of text chunks (incremental).
	Stream(ctx context.Context, req Request) (chunks <-chan string, errs <-chan error)
	Close() error
}
