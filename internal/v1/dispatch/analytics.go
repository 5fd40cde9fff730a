package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/types"
)

// Analytics receives final round results after the validatedScores
// broadcast. Implementations must never affect gameplay; failures are
// logged and dropped.
type Analytics interface {
	ProcessGameResults(ctx context.Context, code types.RoomCode, scores []game.FinalScore, meta map[string]any)
}

// LoggingAnalytics is the default sink: structured log lines only.
type LoggingAnalytics struct{}

func (LoggingAnalytics) ProcessGameResults(ctx context.Context, code types.RoomCode, scores []game.FinalScore, meta map[string]any) {
	logging.Info(ctx, "Game results",
		zap.String("room_code", string(code)),
		zap.Int("players", len(scores)),
		zap.Any("meta", meta))
}
