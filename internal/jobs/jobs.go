// Package jobs holds the scheduled job names and fixed cron schedules
// shared between the job implementations and the install-time scheduling.
package jobs

// Job names.
const (
	CleanupDeletedAccounts = "cleanupDeletedAccounts"
	CleanupFilteredStore   = "cleanupFilteredStore"
	CleanupTopAccounts     = "cleanupTopAccounts"
	RecordSubscriberCount  = "recordSubscriberCount"
	CalculatePostVotes     = "calculatePostVotes"
	UpdateReportEndOfDay   = "updateReportEndOfDay"
	UpdateReportEndOfYear  = "updateReportEndOfYear"
	UpdatePagePermissions  = "updatePagePermissions"
	InitialInstallTasks    = "initialInstallTasks"
)

// Fixed schedules.
const (
	// CleanupCron is the nightly deleted-account sweep.
	CleanupCron = "0 23 * * *"
	// TopAccountsCron re-validates leaderboard accounts shortly after.
	TopAccountsCron = "30 23 * * *"
	// SubscriberCountCron samples the subscriber count at midnight.
	SubscriberCountCron = "0 0 * * *"
	// PostVotesCron refreshes yesterday's scores just after midnight.
	PostVotesCron = "1 0 * * *"
	// PostVotesMonthStartCron seeds the new month's first report.
	PostVotesMonthStartCron = "30 0 1 * *"
	// PostVotesLastMonthCron backfills late-arriving votes for the
	// previous month during its first days.
	PostVotesLastMonthCron = "1 0 2,3,4 * *"
	// ReportEndOfDayCron renders the report pages daily.
	ReportEndOfDayCron = "0 1 * * *"
	// PagePermissionsCron reconciles page visibility with the
	// restrict-to-mods setting.
	PagePermissionsCron = "15 0 * * *"
	// ReportEndOfYearCron finalizes the previous year's page in January.
	ReportEndOfYearCron = "45 0 1,4 1 *"
)
