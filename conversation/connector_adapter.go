package conversation

import (
	"context"

	"github.com/evalcore/evalcore/connector"
)

// ConnectorAdapter is the default Port: it treats SystemID as a model_id and
// delegates straight to the Model Connector, grounded on
// llm/providers/openaicompat/provider.go's request/response shape. Request.
// Context is passed through as Parameters unmodified — the core never
// inspects it.
type ConnectorAdapter struct {
	conn connector.Connector
}

func NewConnectorAdapter(conn connector.Connector) *ConnectorAdapter {
	return &ConnectorAdapter{conn: conn}
}

func (a *ConnectorAdapter) Invoke(ctx context.Context, req Request) (Response, error) {
	creq := connector.Request{
		ModelID: req.SystemID,
		Messages: []connector.Message{
			{Role: "user", Content: req.UserInput},
		},
		Parameters:     req.Context,
		IdempotencyKey: req.IdempotencyKey,
	}

	resp, err := a.conn.Invoke(ctx, creq)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: resp.Text, LatencyMs: resp.LatencyMs}, nil
}
