package kernel

import "ecuos/multicore"

type (
	TaskID          uint16
	ISRID           uint16
	ResourceID      uint16
	CounterID       uint16
	AlarmID         uint16
	ScheduleTableID uint16
	SpinlockID      uint16
	ApplicationID   uint8
	AppModeID       uint8
	CoreID          = multicore.CoreID
)

// Null identifiers.
const (
	InvalidTask          TaskID          = 0xFFFF
	InvalidISR           ISRID           = 0xFFFF
	InvalidResource      ResourceID      = 0xFFFF
	InvalidCounter       CounterID       = 0xFFFF
	InvalidAlarm         AlarmID         = 0xFFFF
	InvalidScheduleTable ScheduleTableID = 0xFFFF
	InvalidSpinlock      SpinlockID      = 0xFFFF
	InvalidApplication   ApplicationID   = 0xFF
)

// Priority is a point in the unified priority space: task priorities occupy
// [0, TaskPriorityLimit), interrupt level l (l >= 1) maps to
// TaskPriorityLimit+l-1.
type Priority uint16

// TaskPriorityLimit is the first priority that belongs to interrupts.
const TaskPriorityLimit Priority = 256

// ISRPriority returns the unified priority of interrupt level l.
func ISRPriority(level uint8) Priority {
	if level == 0 {
		level = 1
	}
	return TaskPriorityLimit + Priority(level) - 1
}

// interruptLevel returns the interrupt mask level a ceiling priority maps to.
// Task-range priorities do not mask any interrupt.
func interruptLevel(p Priority) uint8 {
	if p < TaskPriorityLimit {
		return 0
	}
	return uint8(p-TaskPriorityLimit) + 1
}

// Tick is a counter value.
type Tick uint32

// EventMask is a set of task events.
type EventMask uint64

// AppMask is a set of applications (bit n = application n).
// An object whose permission mask is zero is accessible from every application.
type AppMask uint32

func (m AppMask) allows(app ApplicationID) bool {
	return m == 0 || app == InvalidApplication || m&(1<<app) != 0
}

// TaskState is the state of a task.
type TaskState uint8

const (
	TaskSuspended TaskState = iota
	TaskNew
	TaskReadySync
	TaskReadyAsync
	TaskRunning
	TaskWaiting
	TaskQuarantined
)

func (s TaskState) String() string {
	switch s {
	case TaskSuspended:
		return "suspended"
	case TaskNew:
		return "new"
	case TaskReadySync:
		return "ready-sync"
	case TaskReadyAsync:
		return "ready-async"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// Ready reports whether the task is queued but not running.
func (s TaskState) Ready() bool {
	return s == TaskNew || s == TaskReadySync || s == TaskReadyAsync
}

// AlarmState is the in-use state of an alarm.
type AlarmState uint8

const (
	AlarmIdle AlarmState = iota
	AlarmInUse
	AlarmQuarantined
)

func (s AlarmState) String() string {
	switch s {
	case AlarmIdle:
		return "idle"
	case AlarmInUse:
		return "in use"
	case AlarmQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// ScheduleTableStatus is the externally visible state of a schedule table.
type ScheduleTableStatus uint8

const (
	TableStopped ScheduleTableStatus = iota
	TableNext
	TableWaiting
	TableRunning
	TableRunningSync
)

func (s ScheduleTableStatus) String() string {
	switch s {
	case TableStopped:
		return "stopped"
	case TableNext:
		return "next"
	case TableWaiting:
		return "waiting"
	case TableRunning:
		return "running"
	case TableRunningSync:
		return "running+synchronous"
	default:
		return "unknown"
	}
}

// Running reports whether the table is processing expiry points.
func (s ScheduleTableStatus) Running() bool {
	return s == TableRunning || s == TableRunningSync
}

// ApplicationState is the state of an OS application.
type ApplicationState uint8

const (
	AppAccessible ApplicationState = iota
	AppRestarting
	AppTerminated
)

func (s ApplicationState) String() string {
	switch s {
	case AppAccessible:
		return "accessible"
	case AppRestarting:
		return "restarting"
	case AppTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SyncStrategy is the synchronisation strategy of a schedule table.
type SyncStrategy uint8

const (
	SyncNone SyncStrategy = iota
	SyncExplicit
	SyncImplicit
)

// StartMethod selects how an autostarted alarm or schedule table is armed.
type StartMethod uint8

const (
	StartRelative StartMethod = iota + 1
	StartAbsolute
	StartSynchron
)

// ProtectionAction is the reaction chosen by the protection hook.
type ProtectionAction uint8

const (
	ProtectionQuarantine ProtectionAction = iota
	ProtectionIgnore
	ProtectionTerminateApp
	ProtectionShutdown
)

func (a ProtectionAction) String() string {
	switch a {
	case ProtectionQuarantine:
		return "quarantine"
	case ProtectionIgnore:
		return "ignore"
	case ProtectionTerminateApp:
		return "terminate application"
	case ProtectionShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
