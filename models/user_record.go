package models

// UserRecord is the persistent per-device record behind eligibility checks
// and report reputation. Keyed by the durable device id, not the ephemeral
// per-page-load candidate id.
type UserRecord struct {
	DeviceID     string `dynamodbav:"deviceId" json:"deviceId"`
	Gender       string `dynamodbav:"gender,omitempty" json:"gender,omitempty"`
	LastVerified string `dynamodbav:"lastVerified,omitempty" json:"lastVerified,omitempty"`
	DailyMatches int    `dynamodbav:"dailyMatches" json:"dailyMatches"`
	Blocked      bool   `dynamodbav:"blocked" json:"blocked"`
	ReportsCount int    `dynamodbav:"reportsCount" json:"reportsCount"`
	ReportScore  int    `dynamodbav:"reportScore" json:"reportScore"`
}

// UserRecordsTable is the DynamoDB table name for persistent user records
const UserRecordsTable = "UserRecords"
