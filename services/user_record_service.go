package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"fairtalk_server/models"
)

// DailyMatchLimit caps committed matches per device per day.
const DailyMatchLimit = 5

// Report penalties: each report adds points to the device's record, and
// three strikes block it.
const (
	reportPoints          = 10
	maxReportsBeforeBlock = 3
)

// Eligibility is the admission decision for a device.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Message  string `json:"message,omitempty"`
}

// UserRecordService manages the persistent per-device records consulted
// before a join and updated after commits and reports.
type UserRecordService struct {
	Dynamo *DynamoService
}

func deviceKey(deviceID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"deviceId": &types.AttributeValueMemberS{Value: deviceID},
	}
}

// GetRecord retrieves a user record by device id, nil when none exists.
func (urs *UserRecordService) GetRecord(ctx context.Context, deviceID string) (*models.UserRecord, error) {
	item, err := urs.Dynamo.GetItem(ctx, models.UserRecordsTable, deviceKey(deviceID))
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record models.UserRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to parse user record: %w", err)
	}
	return &record, nil
}

// CheckEligibility admits or refuses a device before it may join the pool.
func (urs *UserRecordService) CheckEligibility(ctx context.Context, deviceID string) (Eligibility, error) {
	record, err := urs.GetRecord(ctx, deviceID)
	if err != nil {
		return Eligibility{}, err
	}
	if record == nil {
		return Eligibility{Eligible: false, Message: "User not found"}, nil
	}
	if record.Blocked {
		return Eligibility{Eligible: false, Message: "User is blocked"}, nil
	}
	if record.DailyMatches >= DailyMatchLimit {
		return Eligibility{Eligible: false, Message: "Daily limit reached"}, nil
	}
	return Eligibility{Eligible: true}, nil
}

// UpsertVerified stores the verification outcome on the device record,
// creating it with zeroed counters on first sight.
func (urs *UserRecordService) UpsertVerified(ctx context.Context, deviceID, gender string) error {
	_, err := urs.Dynamo.UpdateItem(ctx, models.UserRecordsTable,
		"SET gender = :gender, lastVerified = :now, blocked = if_not_exists(blocked, :f), dailyMatches = if_not_exists(dailyMatches, :zero)",
		deviceKey(deviceID),
		map[string]types.AttributeValue{
			":gender": &types.AttributeValueMemberS{Value: gender},
			":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":f":      &types.AttributeValueMemberBOOL{Value: false},
			":zero":   &types.AttributeValueMemberN{Value: "0"},
		},
		nil,
	)
	return err
}

// IncrementDailyMatches bumps the per-day match counter for a device.
func (urs *UserRecordService) IncrementDailyMatches(ctx context.Context, deviceID string) error {
	_, err := urs.Dynamo.UpdateItem(ctx, models.UserRecordsTable,
		"ADD dailyMatches :one",
		deviceKey(deviceID),
		map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		nil,
	)
	return err
}

// ApplyReportPenalty records a report against a device and blocks it once
// it crosses the strike limit.
func (urs *UserRecordService) ApplyReportPenalty(ctx context.Context, deviceID string) error {
	record, err := urs.GetRecord(ctx, deviceID)
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("[Reports] ⚠️ Reported device %s has no user record", deviceID)
		return nil
	}

	reports := record.ReportsCount + 1
	blocked := record.Blocked || reports >= maxReportsBeforeBlock
	if blocked && !record.Blocked {
		log.Printf("[Reports] BLOCKING device %s (reports: %d)", deviceID, reports)
	}

	_, err = urs.Dynamo.UpdateItem(ctx, models.UserRecordsTable,
		"SET reportsCount = :reports, reportScore = :score, blocked = :blocked",
		deviceKey(deviceID),
		map[string]types.AttributeValue{
			":reports": &types.AttributeValueMemberN{Value: strconv.Itoa(reports)},
			":score":   &types.AttributeValueMemberN{Value: strconv.Itoa(record.ReportScore + reportPoints)},
			":blocked": &types.AttributeValueMemberBOOL{Value: blocked},
		},
		nil,
	)
	return err
}

// UpsertTestUser provisions a verified record for environments that run
// without camera verification.
func (urs *UserRecordService) UpsertTestUser(ctx context.Context, deviceID, gender string) error {
	record := models.UserRecord{
		DeviceID:     deviceID,
		Gender:       gender,
		LastVerified: time.Now().UTC().Format(time.RFC3339),
	}
	return urs.Dynamo.PutItem(ctx, models.UserRecordsTable, record)
}
