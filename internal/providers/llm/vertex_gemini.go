package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// configure builds a per-call model so request options never leak between
// concurrent callers.
func (v *VertexGemini) configure(req Request) (*vertexgenai.GenerativeModel, []*vertexgenai.Content, []vertexgenai.Part) {
	m := v.client.GenerativeModel(v.modelName)
	m.SetTemperature(req.Temperature)
	if req.JSONOnly {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{
			Parts: []vertexgenai.Part{vertexgenai.Text(req.System)},
		}
	}

	turns := req.Turns
	if len(turns) == 0 {
		turns = []Turn{{Role: RoleUser, Text: ""}}
	}

	var history []*vertexgenai.Content
	for _, t := range turns[:len(turns)-1] {
		history = append(history, &vertexgenai.Content{
			Role:  string(t.Role),
			Parts: []vertexgenai.Part{vertexgenai.Text(t.Text)},
		})
	}
	last := []vertexgenai.Part{vertexgenai.Text(turns[len(turns)-1].Text)}
	return m, history, last
}

func collectText(resp *vertexgenai.GenerateContentResponse, sb *strings.Builder) {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
}

func (v *VertexGemini) Generate(ctx context.Context, req Request) (string, error) {
	m, history, last := v.configure(req)

	cs := m.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	collectText(resp, &sb)
	return sb.String(), nil
}

func (v *VertexGemini) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	m, history, last := v.configure(req)

	go func() {
		defer close(out)
		defer close(errs)

		cs := m.StartChat()
		cs.History = history

		it := cs.SendMessageStream(ctx, last...)
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			var sb strings.Builder
			collectText(resp, &sb)
			if sb.Len() > 0 {
				out <- sb.String()
			}
		}
	}()

	return out, errs
}
