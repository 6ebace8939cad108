package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/model"
)

// Event is one progress notification. Events for a document are ordered and
// end with a terminal stage.
type Event struct {
	Stage      State             `json:"stage"`
	Status     model.StageStatus `json:"status"`
	DocumentID string            `json:"document_id"`
	Message    string            `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It may be called from several
// goroutines when documents are processed concurrently.
type ProgressFunc func(Event)

// emit delivers ev to the callback. A panicking callback is logged and
// ignored.
func (o *Orchestrator) emit(ev Event) {
	if o.progress == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Warn("pipeline: progress callback panicked",
				zap.String("stage", string(ev.Stage)),
				zap.String("document_id", ev.DocumentID),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	o.progress(ev)
}
