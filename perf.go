package instagram

import (
	"context"
	"fmt"
	"log/slog"
)

// perfLog emits a timing line at debug level. Formatting is skipped when
// debug logging is off.
func perfLog(format string, args ...any) {
	logger := slog.Default()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	logger.Debug(fmt.Sprintf(format, args...), "component", "instagram")
}
