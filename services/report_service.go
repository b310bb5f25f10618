package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fairtalk_server/models"
)

// reportTTL keeps report metadata around for audit, then expires it for
// privacy.
const reportTTL = 30 * 24 * time.Hour

// ErrAlreadyReported signals a second report for the same match from the
// same reporter.
var ErrAlreadyReported = errors.New("already reported for this session")

// ReportService stores moderation signals and applies reputation penalties.
// The matchmaker never consults it.
type ReportService struct {
	Rdb   *goredis.Client
	Users *UserRecordService
}

// Submit stores at most one report per reporter per match and penalizes the
// reported device's persistent record.
func (rs *ReportService) Submit(ctx context.Context, report models.Report) error {
	if report.Time == 0 {
		report.Time = UnixNow()
	}
	if report.Reason != "other" {
		report.CustomReason = ""
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	key := fmt.Sprintf("report:%s:%s", report.MatchID, report.ReporterID)
	stored, err := rs.Rdb.SetNX(ctx, key, string(raw), reportTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	if !stored {
		return ErrAlreadyReported
	}

	if rs.Users != nil {
		// The report itself is recorded; the reputation update is best effort.
		if err := rs.Users.ApplyReportPenalty(ctx, report.ReportedID); err != nil {
			log.Printf("[Reports] ⚠️ Failed to apply penalty to %s: %v", report.ReportedID, err)
		}
	}
	log.Printf("[Reports] Report stored for match %s (reporter %s)", report.MatchID, report.ReporterID)
	return nil
}
