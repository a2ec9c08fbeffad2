package srv

import (
	"context"

	"github.com/quka-ai/supportchat/pkg/ai"
)

// LLM is what the chat pipeline needs from the gateway.
type LLM interface {
	Provider() ai.Provider
	Model() string
	GenerateReply(ctx context.Context, in ai.Context) (*ai.Reply, error)
	HealthCheck(ctx context.Context) bool
}

type Srv struct {
	ai LLM
}

type ApplyFunc func(s *Srv) error

func SetupSrvs(opts ...ApplyFunc) (*Srv, error) {
	s := &Srv{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func ApplyAI(ctx context.Context, cfg AIConfig, opts ...GatewayOption) ApplyFunc {
	return func(s *Srv) error {
		gateway, err := NewGateway(ctx, cfg, opts...)
		if err != nil {
			return err
		}
		s.ai = gateway
		return nil
	}
}

// ApplyLLM installs a prebuilt gateway, mostly for tests.
func ApplyLLM(llm LLM) ApplyFunc {
	return func(s *Srv) error {
		s.ai = llm
		return nil
	}
}

func (s *Srv) AI() LLM {
	return s.ai
}
