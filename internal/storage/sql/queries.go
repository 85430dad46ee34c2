package sql

// queryRegistry holds all SQL queries used by the storage.
// It allows for driver-specific overrides and keeps SQL logic separated from Go code.
type queryRegistry struct {
	driver string
}

func newQueryRegistry(driver string) *queryRegistry {
	return &queryRegistry{driver: driver}
}

// get returns the query for the given key, favoring driver-specific versions if they exist.
func (r *queryRegistry) get(key string) string {
	if driverQueries, ok := driverOverrides[r.driver]; ok {
		if q, ok := driverQueries[key]; ok {
			return q
		}
	}
	return commonQueries[key]
}

const (
	// Table creation
	QueryInitRunsTable    = "InitRunsTable"
	QueryInitLogsTable    = "InitLogsTable"
	QueryInitRunsIndex    = "InitRunsIndex"
	QueryInitLogsRunIndex = "InitLogsRunIndex"

	// Runs
	QuerySaveRun   = "SaveRun"
	QueryGetRun    = "GetRun"
	QueryListRuns  = "ListRuns"
	QueryCountRuns = "CountRuns"
	QueryDeleteRun = "DeleteRun"

	// Logs
	QueryCreateLog     = "CreateLog"
	QueryListLogs      = "ListLogs"
	QueryCountLogs     = "CountLogs"
	QueryDeleteRunLogs = "DeleteRunLogs"
)

// initOrder is the order in which Init runs the schema statements.
var initOrder = []string{QueryInitRunsTable, QueryInitLogsTable, QueryInitRunsIndex, QueryInitLogsRunIndex}

const runColumns = "id, study_id, started, finished, status, score, threshold, domains, critical, errors, warnings, report, artifacts"

var commonQueries = map[string]string{
	QueryInitRunsTable: `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		study_id TEXT NOT NULL,
		started TEXT NOT NULL,
		finished TEXT NOT NULL,
		status TEXT NOT NULL,
		score REAL,
		threshold REAL,
		domains TEXT,
		critical INTEGER,
		errors INTEGER,
		warnings INTEGER,
		report TEXT,
		artifacts TEXT
	)`,
	QueryInitLogsTable: `CREATE TABLE IF NOT EXISTS run_logs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		level TEXT,
		message TEXT,
		domain TEXT,
		action TEXT,
		data TEXT
	)`,
	QueryInitRunsIndex:    "CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started)",
	QueryInitLogsRunIndex: "CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs(run_id, ts)",

	QuerySaveRun: "INSERT INTO runs (" + runColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON CONFLICT(id) DO UPDATE SET study_id = excluded.study_id, started = excluded.started, finished = excluded.finished, " +
		"status = excluded.status, score = excluded.score, threshold = excluded.threshold, domains = excluded.domains, " +
		"critical = excluded.critical, errors = excluded.errors, warnings = excluded.warnings, report = excluded.report, " +
		"artifacts = excluded.artifacts",
	QueryGetRun:    "SELECT " + runColumns + " FROM runs WHERE id = ?",
	QueryListRuns:  "SELECT " + runColumns + " FROM runs",
	QueryCountRuns: "SELECT COUNT(*) FROM runs",
	QueryDeleteRun: "DELETE FROM runs WHERE id = ?",

	QueryCreateLog:     "INSERT INTO run_logs (id, run_id, ts, level, message, domain, action, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
	QueryListLogs:      "SELECT id, run_id, ts, level, message, domain, action, data FROM run_logs",
	QueryCountLogs:     "SELECT COUNT(*) FROM run_logs",
	QueryDeleteRunLogs: "DELETE FROM run_logs WHERE run_id = ?",
}

var mysqlOverrides = map[string]string{
	QueryInitRunsTable: `CREATE TABLE IF NOT EXISTS runs (
		id VARCHAR(64) PRIMARY KEY,
		study_id VARCHAR(128) NOT NULL,
		started VARCHAR(40) NOT NULL,
		finished VARCHAR(40) NOT NULL,
		status VARCHAR(16) NOT NULL,
		score DOUBLE,
		threshold DOUBLE,
		domains TEXT,
		critical INTEGER,
		errors INTEGER,
		warnings INTEGER,
		report LONGTEXT,
		artifacts TEXT,
		INDEX idx_runs_started (started)
	)`,
	QueryInitLogsTable: `CREATE TABLE IF NOT EXISTS run_logs (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		ts VARCHAR(40) NOT NULL,
		level VARCHAR(8),
		message TEXT,
		domain VARCHAR(16),
		action VARCHAR(64),
		data TEXT,
		INDEX idx_run_logs_run (run_id, ts)
	)`,
	// Indexes are declared inline above; MySQL has no CREATE INDEX IF NOT EXISTS.
	QueryInitRunsIndex:    "",
	QueryInitLogsRunIndex: "",
	QuerySaveRun: "INSERT INTO runs (" + runColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE study_id = VALUES(study_id), started = VALUES(started), finished = VALUES(finished), " +
		"status = VALUES(status), score = VALUES(score), threshold = VALUES(threshold), domains = VALUES(domains), " +
		"critical = VALUES(critical), errors = VALUES(errors), warnings = VALUES(warnings), report = VALUES(report), " +
		"artifacts = VALUES(artifacts)",
}

var driverOverrides = map[string]map[string]string{
	"mysql":   mysqlOverrides,
	"mariadb": mysqlOverrides,
}
