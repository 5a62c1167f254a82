package usecases

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// ChatUseCase runs the read path for a session: retrieve, compose, remember.
type ChatUseCase struct {
	retriever *Retriever
	composer  *Composer
	topK      int
	window    int
	logger    *zap.Logger
	recorder  Recorder
}

// NewChatUseCase creates a ChatUseCase. topK < 1 uses DefaultTopK; window < 1
// passes the whole session memory to the prompt.
func NewChatUseCase(retriever *Retriever, composer *Composer, topK, window int, logger *zap.Logger, recorder Recorder) *ChatUseCase {
	if topK < 1 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatUseCase{
		retriever: retriever,
		composer:  composer,
		topK:      topK,
		window:    window,
		logger:    logger,
		recorder:  orNop(recorder),
	}
}

// TopK returns the configured retrieval depth.
func (uc *ChatUseCase) TopK() int { return uc.topK }

// Ask answers a question in the context of the session. The turn is
// remembered only when an answer was generated.
func (uc *ChatUseCase) Ask(ctx context.Context, session *Session, question string) (*entities.ChatResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errs.InvalidArgument("usecases.Ask", "question is empty")
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	result, err := uc.retriever.Retrieve(ctx, question, uc.topK)
	if err != nil {
		return nil, err
	}

	history, err := session.memory.Recent(ctx, uc.window)
	if err != nil {
		return nil, err
	}

	answer, sources, err := uc.composer.Answer(ctx, question, result, history)
	uc.recorder.Answer(err == nil)
	if err != nil {
		return nil, err
	}

	turn := entities.Turn{
		Question:  question,
		Answer:    answer,
		Timestamp: time.Now().UTC(),
		Sources:   sources,
	}
	if err := session.memory.Append(ctx, turn); err != nil {
		return nil, err
	}

	uc.logger.Info("question answered",
		zap.String("session", session.ID),
		zap.Int("passages", len(result)),
		zap.Strings("sources", sources))

	return &entities.ChatResponse{
		Answer:   answer,
		Sources:  sources,
		Passages: result,
	}, nil
}
