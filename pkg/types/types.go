// Package types defines the shared data model for the fleet control plane:
// server instances, task records, cron jobs, DNS state, and snapshots.
package types

import "time"

// ServerInstance identifies a single Minecraft server's compose project.
type ServerInstance struct {
	ID         string
	ComposeDir string
	GamePort   int
	RCONPort   int
}

// LifecycleStatus is the derived, non-persisted state of a server instance.
type LifecycleStatus string

const (
	StatusRemoved  LifecycleStatus = "REMOVED"
	StatusExists   LifecycleStatus = "EXISTS"
	StatusCreated  LifecycleStatus = "CREATED"
	StatusRunning  LifecycleStatus = "RUNNING"
	StatusStarting LifecycleStatus = "STARTING"
	StatusHealthy  LifecycleStatus = "HEALTHY"
)

func (s LifecycleStatus) String() string { return string(s) }

// ContainerStatus is the raw state a container driver reports for a project,
// before it is folded with probe results into a LifecycleStatus.
type ContainerStatus struct {
	ContainerID string
	Exists      bool
	Running     bool
}

// TaskType is the closed enum of operations the task manager can run.
type TaskType string

const (
	TaskArchiveCreate  TaskType = "archive_create"
	TaskArchiveExtract TaskType = "archive_extract"
	TaskSnapshotCreate TaskType = "snapshot_create"
	TaskSnapshotRestore TaskType = "snapshot_restore"
	TaskServerStart    TaskType = "server_start"
	TaskServerStop     TaskType = "server_stop"
	TaskServerRestart  TaskType = "server_restart"
)

// TaskStatus is the lifecycle state of a submitted task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// Progress is a single yield from a task's driving generator.
type Progress struct {
	Progress *int // nil leaves the task record's progress untouched
	Message  string
	Result   any
}

// Task is the in-memory record the task manager exposes for a submitted job.
type Task struct {
	ID          string
	Type        TaskType
	Name        string
	ServerID    string
	Status      TaskStatus
	Progress    *int
	Message     string
	Result      any
	Error       string
	Cancellable bool
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
}

// CronJobStatus is the persisted lifecycle state of a cron job row.
type CronJobStatus string

const (
	CronActive    CronJobStatus = "ACTIVE"
	CronPaused    CronJobStatus = "PAUSED"
	CronCancelled CronJobStatus = "CANCELLED"
)

// CronJob is the persisted schedule row, keyed by CronJobID.
type CronJob struct {
	CronJobID       string `gorm:"column:cronjob_id;primaryKey"`
	Identifier      string `gorm:"column:identifier"`
	Name            string `gorm:"column:name"`
	CronExpression  string `gorm:"column:cron"`
	SecondField     string `gorm:"column:second"`
	ParamsJSON      string `gorm:"column:params_json"`
	Status          CronJobStatus `gorm:"column:status"`
	ExecutionCount  int    `gorm:"column:execution_count"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (CronJob) TableName() string { return "cronjob" }

// ExecutionStatus is the terminal or in-flight state of a single firing.
type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "RUNNING"
	ExecCompleted ExecutionStatus = "COMPLETED"
	ExecFailed    ExecutionStatus = "FAILED"
	ExecCancelled ExecutionStatus = "CANCELLED"
)

// CronExecution is one row per invocation of a CronJob.
type CronExecution struct {
	ExecutionID string    `gorm:"column:execution_id;primaryKey"`
	CronJobID   string    `gorm:"column:cronjob_id;index"`
	StartedAt   time.Time `gorm:"column:started_at"`
	EndedAt     *time.Time `gorm:"column:ended_at"`
	Status      ExecutionStatus `gorm:"column:status"`
	DurationMS  *int64    `gorm:"column:duration_ms"`
	MessagesJSON string   `gorm:"column:messages_json"`
}

func (CronExecution) TableName() string { return "cronjob_execution" }

// AddressKind is the tagged-union discriminator for an AddressSpec.
type AddressKind string

const (
	AddressManual AddressKind = "manual"
	AddressNATMap AddressKind = "natmap"
)

// AddressSpec configures one DNS/router address entry.
//
// For Kind == AddressManual, Value and Port are used directly.
// For Kind == AddressNATMap, InternalPort is looked up via the NAT-mapping
// client at reconciliation time.
type AddressSpec struct {
	Name         string
	Kind         AddressKind `validate:"oneof=manual natmap"`
	Value        string
	Port         int
	InternalPort int
	// AddrName is copied from configuration but not read by the reconciler:
	// a Name other than "" or "*" is what builds "<server>.<name>.<sub>"
	// vhosts/SRV names instead of the bare "<server>.<sub>" form.
	AddrName string
}

// ResolvedAddress is an AddressSpec resolved to a concrete host/port pair.
type ResolvedAddress struct {
	Name string
	Host string
	Port int
}

// DesiredDNSState is what the fleet's DNS/routing records should look like.
type DesiredDNSState struct {
	Addresses map[string]ResolvedAddress
	Servers   map[string]int // server_id -> game_port
}

// DNSRecordType enumerates the record kinds this system writes.
type DNSRecordType string

const (
	RecordA   DNSRecordType = "A"
	RecordSRV DNSRecordType = "SRV"
)

// DNSRecord is a single provider-side record, matched by (Sub, Type, Value, TTL).
type DNSRecord struct {
	ID    string
	Sub   string
	Type  DNSRecordType
	Value string
	TTL   int
}

// Route is a single L7 router vhost -> backend mapping.
type Route struct {
	Vhost   string
	Backend string
}

// ActualDNSState is the union of provider records and router routes that
// fall within the managed subdomain.
type ActualDNSState struct {
	Records []DNSRecord
	Routes  []Route
}

// Snapshot describes a point-in-time backup.
type Snapshot struct {
	ID       string
	ShortID  string
	Time     time.Time
	Paths    []string
	Hostname string
	Username string
	Summary  *SnapshotSummary
}

// SnapshotSummary is returned by a backup operation.
type SnapshotSummary struct {
	FilesNew              int
	TotalFilesProcessed   int
	TotalBytesProcessed   int64
}

// RestoreAction is one line of a restore preview.
type RestoreAction struct {
	Action string // "restored", "updated", "deleted"
	Item   string
	Size   int64
}
