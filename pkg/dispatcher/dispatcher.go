package dispatcher

import (
	"context"

	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/protocol"
)

const logModule = "Dispatcher"

// Routes receives classified frames. Connection acks are consumed by the
// dispatcher itself since they change nothing.
type Routes interface {
	OnChatResponse(ctx context.Context, r protocol.ChatResponse)
	OnResult(ctx context.Context, r protocol.ProcessingResult)
	OnMalformed(ctx context.Context, m protocol.Malformed)
}

// Dispatcher decodes inbound frames and hands each to exactly one route, in
// arrival order. It cannot tell which request a frame answers; that relies on
// the caller not interleaving a submission and a question.
type Dispatcher struct {
	routes Routes
	logger logger.ILogger
}

func New(routes Routes, log logger.ILogger) *Dispatcher {
	return &Dispatcher{routes: routes, logger: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) protocol.Kind {
	frame := protocol.Decode(raw)

	switch f := frame.(type) {
	case protocol.ConnectedAck:
		d.logger.Info(logModule, "Connection confirmed by server", map[string]interface{}{"message": f.Message})
	case protocol.ChatResponse:
		d.routes.OnChatResponse(ctx, f)
	case protocol.ProcessingResult:
		d.routes.OnResult(ctx, f)
	case protocol.Malformed:
		d.logger.Error(logModule, "Could not classify server frame", map[string]interface{}{
			"error": f.Err.Error(),
			"bytes": len(f.Raw),
		})
		d.routes.OnMalformed(ctx, f)
	}
	return frame.Kind()
}
