package tts

import "context"

type Provider interface {
	Synthesize(ctx context.Context, text string) (audio []byte, err error)
	Close() error
}
