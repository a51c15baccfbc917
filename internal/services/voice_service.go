package services

import (
	"bytes"
	"context"

	"github.com/google/uuid"

	"github.com/everbloom-ai/everbloom/internal/gate"
	"github.com/everbloom-ai/everbloom/internal/providers/stt"
	"github.com/everbloom-ai/everbloom/internal/providers/tts"
	"github.com/everbloom-ai/everbloom/internal/storage"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// VoiceService converts companion replies to speech and inbound voice notes
// to text. Synthesis runs behind an injected concurrency gate because the
// speech provider caps simultaneous requests.
type VoiceService interface {
	Synthesize(ctx context.Context, userID, text string) (url string, err error)
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

type voiceService struct {
	tts      tts.Provider
	stt      stt.Provider
	uploader storage.Uploader
	gate     *gate.Gate
}

func NewVoiceService(t tts.Provider, s stt.Provider, uploader storage.Uploader, g *gate.Gate) VoiceService {
	return &voiceService{tts: t, stt: s, uploader: uploader, gate: g}
}

func (s *voiceService) Synthesize(ctx context.Context, userID, text string) (string, error) {
	const op = "VoiceService.Synthesize"

	if userID == "" || text == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "user_id and text are required", nil)
	}

	if err := s.gate.Acquire(ctx); err != nil {
		if err == gate.ErrQueueFull {
			return "", utils.E(utils.CodeUnavailable, op, "voice synthesis is busy, try again shortly", err)
		}
		return "", utils.E(utils.CodeTimeout, op, "cancelled while waiting for a synthesis slot", err)
	}
	defer s.gate.Release()

	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "speech synthesis failed", err)
	}

	object := "voice/" + userID + "/" + uuid.NewString() + ".mp3"
	url, err := s.uploader.Upload(ctx, object, "audio/mpeg", bytes.NewReader(audio))
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "voice clip upload failed", err)
	}
	return url, nil
}

func (s *voiceService) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	const op = "VoiceService.Transcribe"

	if len(audio) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "audio is required", nil)
	}

	text, _, err := s.stt.Transcribe(ctx, audio, language)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "transcription failed", err)
	}
	return text, nil
}
