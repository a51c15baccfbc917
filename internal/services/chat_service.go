package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// ApologyReply is returned verbatim when live generation fails; the user
// never sees an error page for a model hiccup.
const ApologyReply = "I'm sorry, my thoughts got tangled for a moment. Could you say that again?"

// ChatReply is the outcome of one accepted send.
type ChatReply struct {
	Reply     string `json:"reply"`
	Remaining int    `json:"remaining"`
	VoiceURL  string `json:"voice_url,omitempty"`
}

// Synthesizer is the voice dependency of the chat path; nil disables voice
// replies.
type Synthesizer interface {
	Synthesize(ctx context.Context, userID, text string) (url string, err error)
}

// ChatService runs the user-facing send path: the limiter and suspension
// gates are the only synchronous checks; everything else the append triggers
// do happens off this path.
type ChatService interface {
	Send(ctx context.Context, userID, content string, wantVoice bool) (*ChatReply, error)
	// SendStream behaves like Send but emits reply chunks as they arrive.
	// The full reply is still appended to the log once the stream ends.
	SendStream(ctx context.Context, userID, content string) (<-chan string, <-chan error)
}

type chatService struct {
	messages   MessageService
	limiter    LimiterService
	overseer   OverseerService
	stage      StageService
	profile    ProfileSynthesizer
	log        redisrepo.MessageLog
	gen        llm.Provider
	voice      Synthesizer
	thresholds pipeline.Thresholds
	logger     *logrus.Logger
}

func NewChatService(
	messages MessageService,
	limiter LimiterService,
	overseer OverseerService,
	stage StageService,
	profile ProfileSynthesizer,
	log redisrepo.MessageLog,
	gen llm.Provider,
	voice Synthesizer,
	thresholds pipeline.Thresholds,
	logger *logrus.Logger,
) ChatService {
	return &chatService{
		messages:   messages,
		limiter:    limiter,
		overseer:   overseer,
		stage:      stage,
		profile:    profile,
		log:        log,
		gen:        gen,
		voice:      voice,
		thresholds: thresholds,
		logger:     logger,
	}
}

// gate runs the synchronous pre-send checks and appends the user message.
// It returns the remaining budget and the prepared generation request.
func (s *chatService) gate(ctx context.Context, userID, content string) (int, llm.Request, error) {
	const op = "ChatService.Send"

	if userID == "" || strings.TrimSpace(content) == "" {
		return 0, llm.Request{}, utils.E(utils.CodeInvalidArgument, op, "user_id and content are required", nil)
	}

	state, err := s.overseer.Status(ctx, userID)
	if err == nil && state.Suspended {
		return 0, llm.Request{}, utils.E(utils.CodeForbidden, op, "account suspended; contact support", nil)
	}

	decision, err := s.limiter.CanSend(ctx, userID)
	if err != nil {
		return 0, llm.Request{}, err
	}
	if !decision.Allowed {
		return 0, llm.Request{}, utils.E(utils.CodeResourceExhausted, op, "daily message limit reached", nil)
	}

	if _, err := s.messages.Append(ctx, userID, models.Message{
		Type:    models.MessageUser,
		Content: content,
	}); err != nil {
		return 0, llm.Request{}, err
	}

	return decision.Remaining, s.buildRequest(ctx, userID, content), nil
}

// buildRequest grounds the reply on the persona stage script, the cached
// profile analysis, and the recent context window. Every grounding input is
// optional: a missing profile or persona must never block a reply.
func (s *chatService) buildRequest(ctx context.Context, userID, content string) llm.Request {
	var sb strings.Builder
	sb.WriteString("You are the user's AI companion.\n")

	if persona, err := s.stage.Persona(ctx, userID); err == nil {
		sb.WriteString("\nPersona stage guidance:\n")
		sb.WriteString(persona.StageScript)
		var attrs map[string]string
		if len(persona.Attributes) > 0 && json.Unmarshal(persona.Attributes, &attrs) == nil {
			sb.WriteString("\nYour life details: ")
			for k, v := range attrs {
				sb.WriteString(k + ": " + v + "; ")
			}
		}
	}

	if profile, err := s.profile.Get(ctx, userID); err == nil {
		sb.WriteString("\nWhat you know about the user: communication style " + profile.CommunicationStyle +
			", attachment style " + profile.AttachmentStyle + ", coping style " + profile.CopingStyle + ".")
	}

	turns := []llm.Turn{}
	if recent, err := s.log.RecentN(ctx, userID, s.thresholds.ContextWindow); err == nil {
		for _, m := range recent {
			role := llm.RoleUser
			if m.Type == models.MessageCompanion {
				role = llm.RoleModel
			}
			turns = append(turns, llm.Turn{Role: role, Text: m.Content})
		}
	}
	// the just-appended user message may or may not be inside the window read;
	// make sure the last turn is the current message exactly once
	if len(turns) == 0 || turns[len(turns)-1].Text != content || turns[len(turns)-1].Role != llm.RoleUser {
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Text: content})
	}

	return llm.Request{
		System:      sb.String(),
		Turns:       turns,
		Temperature: 0.9,
	}
}

func (s *chatService) Send(ctx context.Context, userID, content string, wantVoice bool) (*ChatReply, error) {
	remaining, req, err := s.gate(ctx, userID, content)
	if err != nil {
		return nil, err
	}

	reply, err := s.gen.Generate(ctx, req)
	if err != nil || strings.TrimSpace(reply) == "" {
		s.logger.WithError(err).WithField("user_id", userID).Error("live generation failed; degrading to apology")
		reply = ApologyReply
	}

	out := &ChatReply{Reply: reply, Remaining: remaining}

	if wantVoice && s.voice != nil && reply != ApologyReply {
		if url, verr := s.voice.Synthesize(ctx, userID, reply); verr != nil {
			s.logger.WithError(verr).WithField("user_id", userID).Warn("voice synthesis failed")
		} else {
			out.VoiceURL = url
		}
	}

	s.appendReply(ctx, userID, reply, out.VoiceURL)
	s.limiter.ChargeTokens(ctx, userID, 2) // user message + companion reply
	return out, nil
}

func (s *chatService) SendStream(ctx context.Context, userID, content string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	_, req, err := s.gate(ctx, userID, content)
	if err != nil {
		errs <- err
		close(out)
		close(errs)
		return out, errs
	}

	go func() {
		defer close(out)
		defer close(errs)

		chunks, streamErrs := s.gen.Stream(ctx, req)

		// Forwarding must never outlive the consumer: a client that stops
		// reading would otherwise park this goroutine on a full buffer.
		var full strings.Builder
		gone := false
	forward:
		for chunk := range chunks {
			full.WriteString(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				gone = true
				break forward
			}
		}

		var streamErr error
		select {
		case streamErr = <-streamErrs:
		default:
		}

		reply := full.String()
		if !gone && (streamErr != nil || strings.TrimSpace(reply) == "") {
			s.logger.WithError(streamErr).WithField("user_id", userID).Error("live stream failed; degrading to apology")
			reply = ApologyReply
			select {
			case out <- reply:
			case <-ctx.Done():
			}
		}

		// The user message is already in the log, so the companion side of
		// the exchange is persisted even when the client went away mid-stream.
		if strings.TrimSpace(reply) != "" {
			persistCtx := context.WithoutCancel(ctx)
			s.appendReply(persistCtx, userID, reply, "")
			s.limiter.ChargeTokens(persistCtx, userID, 2)
		}
	}()

	return out, errs
}

// appendReply stores the companion message; a storage failure here is logged
// but the reply was already produced and is still delivered.
func (s *chatService) appendReply(ctx context.Context, userID, reply, voiceURL string) {
	m := models.Message{
		Type:      models.MessageCompanion,
		Content:   reply,
		Timestamp: time.Now().UTC(),
	}
	if voiceURL != "" {
		m.Metadata = map[string]any{"voice": true, "voice_url": voiceURL}
	}
	if _, err := s.messages.Append(ctx, userID, m); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("companion message append failed")
	}
}
