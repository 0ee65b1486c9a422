// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションと招待キーを定期的に削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はクリーンアップの既定の実行間隔。
const DefaultInterval = 24 * time.Hour

// Purger は期限切れレコードを削除し、削除件数を返すインターフェース。
// repository.SessionRepository と repository.InviteKeyRepository が満たす。
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れのセッションと招待キーの削除ジョブ。
// 削除対象がない場合も成功として扱う。
type CleanupJob struct {
	sessions Purger
	invites  Purger
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions, invites Purger, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		invites:  invites,
		logger:   logger,
	}
}

// Run は期限切れのセッションと招待キーを1回削除する。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, sessErr := j.purge(ctx, "sessions", j.sessions)
	invites, invErr := j.purge(ctx, "invite_keys", j.invites)
	if err := errors.Join(sessErr, invErr); err != nil {
		return err
	}

	j.logger.Info("cleanup job completed",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_invite_keys", invites),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) purge(ctx context.Context, target string, p Purger) (int64, error) {
	if p == nil {
		return 0, nil
	}
	n, err := p.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("failed to delete expired records",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to delete expired %s: %w", target, err)
	}
	return n, nil
}

// Start は起動直後に1回実行し、以後interval間隔で実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("cleanup scheduler started", slog.Duration("interval", interval))

	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
