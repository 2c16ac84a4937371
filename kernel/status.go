package kernel

import (
	"errors"
	"fmt"
)

// Status is the outcome of a kernel service.
type Status uint8

const (
	StatusOK Status = iota
	StatusAccess
	StatusCallLevel
	StatusID
	StatusLimit
	StatusNoFunc
	StatusResource
	StatusState
	StatusValue
	StatusCeiling
	StatusQuarantined
	StatusRateLimit
	StatusSpinlock
	StatusDeadlock
	StatusNesting
	StatusCoreIsDown
	StatusSyncCorrupt
	StatusUnknownCall
	StatusExecBudget
	StatusLockBudget
	StatusShutdown
	StatusInUse
	StatusPermission
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAccess:
		return "access"
	case StatusCallLevel:
		return "wrong call level"
	case StatusID:
		return "invalid object id"
	case StatusLimit:
		return "max activations exceeded"
	case StatusNoFunc:
		return "object not in the required state"
	case StatusResource:
		return "resource still held"
	case StatusState:
		return "invalid object state"
	case StatusValue:
		return "parameter out of range"
	case StatusCeiling:
		return "priority ceiling violation"
	case StatusQuarantined:
		return "quarantined"
	case StatusRateLimit:
		return "rate limit exceeded"
	case StatusSpinlock:
		return "spinlock still held"
	case StatusDeadlock:
		return "spinlock interference deadlock"
	case StatusNesting:
		return "spinlock nesting violation"
	case StatusCoreIsDown:
		return "core is down"
	case StatusSyncCorrupt:
		return "sync array corrupted"
	case StatusUnknownCall:
		return "unknown system call"
	case StatusExecBudget:
		return "execution budget exceeded"
	case StatusLockBudget:
		return "interrupt lock budget exceeded"
	case StatusShutdown:
		return "os shut down"
	case StatusInUse:
		return "object already in use"
	case StatusPermission:
		return "permission denied"
	default:
		return "unknown"
	}
}

// Err converts s to a Go error; StatusOK becomes nil.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return statusError(s)
}

type statusError Status

func (e statusError) Error() string { return "os: " + Status(e).String() }

// StatusOf extracts the Status carried by err, or StatusOK when err is nil.
// Errors that do not carry a status report StatusUnknownCall.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se statusError
	if errors.As(err, &se) {
		return Status(se)
	}
	return StatusUnknownCall
}

// ServiceID names a kernel service for error reporting.
type ServiceID uint8

const (
	ServiceNone ServiceID = iota
	ServiceActivateTask
	ServiceTerminateTask
	ServiceChainTask
	ServiceSchedule
	ServiceGetTaskState
	ServiceSetEvent
	ServiceClearEvent
	ServiceGetEvent
	ServiceWaitEvent
	ServiceGetResource
	ServiceReleaseResource
	ServiceIncrementCounter
	ServiceAdvanceCounter
	ServiceGetCounterValue
	ServiceGetElapsedValue
	ServiceSetRelAlarm
	ServiceSetAbsAlarm
	ServiceCancelAlarm
	ServiceGetAlarm
	ServiceGetAlarmBase
	ServiceStartScheduleTableRel
	ServiceStartScheduleTableAbs
	ServiceStartScheduleTableSynchron
	ServiceStopScheduleTable
	ServiceNextScheduleTable
	ServiceSyncScheduleTable
	ServiceSetScheduleTableAsync
	ServiceGetScheduleTableStatus
	ServiceGetSpinlock
	ServiceTryToGetSpinlock
	ServiceReleaseSpinlock
	ServiceRaiseInterrupt
	ServiceInterruptLock
	ServiceStartOS
	ServiceShutdownOS
	ServiceStartCore
	ServiceShutdownAllCores
	ServiceTerminateApplication
	ServiceAlarmAction
	ServiceISRExit
	ServiceBudget
	ServiceCrossCore
	ServiceUnquarantine
)

var serviceNames = [...]string{
	ServiceNone:                       "none",
	ServiceActivateTask:               "ActivateTask",
	ServiceTerminateTask:              "TerminateTask",
	ServiceChainTask:                  "ChainTask",
	ServiceSchedule:                   "Schedule",
	ServiceGetTaskState:               "GetTaskState",
	ServiceSetEvent:                   "SetEvent",
	ServiceClearEvent:                 "ClearEvent",
	ServiceGetEvent:                   "GetEvent",
	ServiceWaitEvent:                  "WaitEvent",
	ServiceGetResource:                "GetResource",
	ServiceReleaseResource:            "ReleaseResource",
	ServiceIncrementCounter:           "IncrementCounter",
	ServiceAdvanceCounter:             "AdvanceCounter",
	ServiceGetCounterValue:            "GetCounterValue",
	ServiceGetElapsedValue:            "GetElapsedValue",
	ServiceSetRelAlarm:                "SetRelAlarm",
	ServiceSetAbsAlarm:                "SetAbsAlarm",
	ServiceCancelAlarm:                "CancelAlarm",
	ServiceGetAlarm:                   "GetAlarm",
	ServiceGetAlarmBase:               "GetAlarmBase",
	ServiceStartScheduleTableRel:      "StartScheduleTableRel",
	ServiceStartScheduleTableAbs:      "StartScheduleTableAbs",
	ServiceStartScheduleTableSynchron: "StartScheduleTableSynchron",
	ServiceStopScheduleTable:          "StopScheduleTable",
	ServiceNextScheduleTable:          "NextScheduleTable",
	ServiceSyncScheduleTable:          "SyncScheduleTable",
	ServiceSetScheduleTableAsync:      "SetScheduleTableAsync",
	ServiceGetScheduleTableStatus:     "GetScheduleTableStatus",
	ServiceGetSpinlock:                "GetSpinlock",
	ServiceTryToGetSpinlock:           "TryToGetSpinlock",
	ServiceReleaseSpinlock:            "ReleaseSpinlock",
	ServiceRaiseInterrupt:             "RaiseInterrupt",
	ServiceInterruptLock:              "InterruptLock",
	ServiceStartOS:                    "StartOS",
	ServiceShutdownOS:                 "ShutdownOS",
	ServiceStartCore:                  "StartCore",
	ServiceShutdownAllCores:           "ShutdownAllCores",
	ServiceTerminateApplication:       "TerminateApplication",
	ServiceAlarmAction:                "AlarmAction",
	ServiceISRExit:                    "ISRExit",
	ServiceBudget:                     "Budget",
	ServiceCrossCore:                  "CrossCore",
	ServiceUnquarantine:               "Unquarantine",
}

func (s ServiceID) String() string {
	if int(s) < len(serviceNames) && serviceNames[s] != "" {
		return serviceNames[s]
	}
	return fmt.Sprintf("service(%d)", uint8(s))
}
