package canvas

import (
	"context"
	"strings"
	"time"

	"github.com/suPer8Hu/canvas-platform/internal/ai"
	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/metrics"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

const (
	// BranchSeedLimit caps how many parent messages a branch inherits.
	BranchSeedLimit = 10
	// MaxHistory caps the turns sent to the model before the prompt.
	MaxHistory = 10
	// DefaultJobLease is how long a running turn job is owned by one worker.
	DefaultJobLease = 5 * time.Minute
)

// Gateway is what the turn orchestrator needs from the model layer.
type Gateway interface {
	Reply(ctx context.Context, history []ai.Message, prompt string) (string, error)
	Stream(ctx context.Context, history []ai.Message, prompt string) (<-chan string, <-chan error, error)
}

// Publisher hands async turn jobs to the worker queue.
type Publisher interface {
	PublishTurn(ctx context.Context, jobID string) error
}

type Service struct {
	repo        *Repo
	gateway     Gateway
	publisher   Publisher
	log         *logger.Logger
	metrics     *metrics.Metrics
	historySize int
	jobLease    time.Duration
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithPublisher enables PostMessageAsync.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithHistorySize bounds the model context; values outside 1..MaxHistory fall back to MaxHistory.
func WithHistorySize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= MaxHistory {
			s.historySize = n
		}
	}
}

// WithJobLease sets how long a running job may go without progress before
// another delivery may take it over.
func WithJobLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobLease = d
		}
	}
}

func NewService(repo *Repo, gw Gateway, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		gateway:     gw,
		log:         logger.Nop(),
		historySize: MaxHistory,
		jobLease:    DefaultJobLease,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func toAIMessages(msgs []models.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func requireID(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperr.Validation(name + " is required")
	}
	return nil
}
