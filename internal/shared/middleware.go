package shared

import (
	"context"
	"log/slog"
	"net/http"
)

type responseWriterWithCommit struct {
	http.ResponseWriter
	ctx           context.Context
	logger        *slog.Logger
	sessions      []*Session
	headerWritten bool
}

func (w *responseWriterWithCommit) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		for _, sess := range w.sessions {
			if err := sess.manager.Commit(w.ctx, w.ResponseWriter, sess); err != nil {
				w.logger.Error("commit session", slog.String("prefix", sess.manager.prefix), slog.Any("error", err))
			}
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWithCommit) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// SessionMiddleware loads one session per manager into the request context
// and commits them right before the response header is written.
func SessionMiddleware(logger *slog.Logger, managers ...*SessionManager) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sessions := make([]*Session, 0, len(managers))
			for _, sm := range managers {
				sess, err := sm.Load(ctx, r)
				if err != nil {
					logger.Error("failed to load session", slog.String("prefix", sm.prefix), slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				ctx = ContextWithSession(ctx, sess)
				sessions = append(sessions, sess)
			}

			wrapped := &responseWriterWithCommit{
				ResponseWriter: w,
				ctx:            ctx,
				logger:         logger,
				sessions:       sessions,
			}
			next.ServeHTTP(wrapped, r.WithContext(ctx))
			if !wrapped.headerWritten {
				wrapped.WriteHeader(http.StatusOK)
			}
		})
	}
}
