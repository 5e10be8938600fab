package reconciler

import (
	"context"

	"youwin-client/internal/entity"
	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/protocol"
)

const logModule = "Reconciler"

// DefaultErrorMessage is shown for an error result without a message.
const DefaultErrorMessage = "An unknown error occurred"

// CacheWriter is the part of the cache store the reconciler writes through.
type CacheWriter interface {
	Put(ctx context.Context, t entity.Table, reference, content string) entity.CacheEntry
}

// Display is what the caller currently sees for the active reference.
type Display struct {
	Transcript string
	Summary    string
	Error      string
	ChatReady  bool
}

// Outcome reports what a processing result changed.
type Outcome struct {
	Success          bool
	TranscriptStored bool
	SummaryStored    bool
	Message          string
}

type Reconciler struct {
	cache  CacheWriter
	logger logger.ILogger
}

func New(cache CacheWriter, log logger.ILogger) *Reconciler {
	return &Reconciler{cache: cache, logger: log}
}

// Apply merges a terminal frame into the cache and display. Artifacts are
// merged independently; an absent one leaves the displayed value alone.
// An error result blanks the display but never touches the cache.
func (r *Reconciler) Apply(ctx context.Context, reference string, res protocol.ProcessingResult, d *Display) Outcome {
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		d.Error = msg
		d.Transcript = ""
		d.Summary = ""
		r.logger.Warn(logModule, "Server reported an error", map[string]interface{}{"reference": reference, "message": msg})
		return Outcome{Message: msg}
	}

	out := Outcome{Success: true}
	if res.HasTranscript() {
		d.Transcript = res.Transcript
		d.Error = ""
		r.cache.Put(ctx, entity.TableTranscripts, reference, res.Transcript)
		out.TranscriptStored = true
	}
	if res.HasSummary() {
		d.Summary = res.Summary
		d.Error = ""
		d.ChatReady = true
		r.cache.Put(ctx, entity.TableSummaries, reference, res.Summary)
		out.SummaryStored = true
	}

	r.logger.Info(logModule, "Result reconciled", map[string]interface{}{
		"reference":  reference,
		"transcript": out.TranscriptStored,
		"summary":    out.SummaryStored,
	})
	return out
}
