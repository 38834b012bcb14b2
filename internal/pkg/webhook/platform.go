package webhook

import (
	"context"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
)

// StreamPlatform adapts the video platform client to Platform
type StreamPlatform struct {
	*streamvideo.Client
}

func NewStreamPlatform(client *streamvideo.Client) *StreamPlatform {
	return &StreamPlatform{Client: client}
}

func (p *StreamPlatform) ConnectAgent(ctx context.Context, req streamvideo.ConnectAgentRequest) (AgentSession, error) {
	rc, err := p.Client.ConnectAgent(ctx, req)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
