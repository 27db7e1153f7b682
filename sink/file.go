package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

// FileSink writes one JSON document per outcome under a base directory.
// Suitable for single-node runs where the saved responses are the artifact
// of the batch.
type FileSink struct {
	baseDir string
	logger  *zap.Logger
}

// NewFileSink creates the base directory and returns a FileSink.
func NewFileSink(baseDir string, logger *zap.Logger) (*FileSink, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("sink base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "file_sink")),
	}, nil
}

// savedResponse is the on-disk document format.
type savedResponse struct {
	RequestID string         `json:"request_id"`
	Success   bool           `json:"success"`
	Content   string         `json:"content"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SavedAt   time.Time      `json:"saved_at"`
}

// Save writes the response as pretty-printed JSON. Filenames derive from the
// request ID, with a UUID fallback for responses that never got one.
func (s *FileSink) Save(ctx context.Context, resp types.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := sanitizeFilename(resp.RequestID)
	if name == "" {
		name = uuid.NewString()
	}
	path := filepath.Join(s.baseDir, fmt.Sprintf("response_%s.json", name))

	doc := savedResponse{
		RequestID: resp.RequestID,
		Success:   resp.Success,
		Content:   resp.Content,
		Error:     resp.Error,
		Metadata:  resp.Metadata,
		SavedAt:   time.Now().UTC(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response %s: %w", resp.RequestID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write response %s: %w", resp.RequestID, err)
	}

	s.logger.Debug("response saved", zap.String("path", path))
	return nil
}

// sanitizeFilename keeps filenames portable: lowercase, alphanumeric plus
// dash and underscore.
func sanitizeFilename(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
