package kernel

// GetApplicationState returns the state of application a.
func (k *Kernel) GetApplicationState(a ApplicationID) (ApplicationState, Status) {
	if int(a) >= len(k.cfg.Applications) {
		return AppTerminated, StatusID
	}
	return k.apps[a], StatusOK
}

// GetApplicationID returns the application of the executing task or ISR.
func (k *Kernel) GetApplicationID() ApplicationID { return k.appOf(k.who()) }

// TerminateApplication kills every task, ISR, alarm and schedule table of
// application a. With restart set the application goes to the restarting
// state and its restart task is activated; it becomes accessible again once
// that task calls AllowAccess.
func (k *Kernel) TerminateApplication(a ApplicationID, restart bool) Status {
	r := uint32(0)
	if restart {
		r = 1
	}
	return k.service(ServiceTerminateApplication, uint32(a), r, func(c caller) Status {
		if int(a) >= len(k.cfg.Applications) {
			return StatusID
		}
		if !k.ownsApp(a) {
			return StatusAccess
		}
		if own := k.appOf(c); own != a && !k.trusted(c) {
			return StatusAccess
		}
		if k.apps[a] == AppTerminated {
			return StatusState
		}
		if restart && !k.cfg.Applications[a].Restartable {
			return StatusNoFunc
		}
		k.terminateApplication(a, restart)
		return StatusOK
	})
}

func (k *Kernel) terminateApplication(a ApplicationID, restart bool) {
	for i := range k.cfg.ISRs {
		if k.cfg.ISRs[i].App == a && k.ownsISR(ISRID(i)) {
			k.releaseChain(caller{kind: callerISR, id: uint16(i)})
			k.isrs[i].pending = false
		}
	}
	for i := range k.cfg.Tasks {
		if k.cfg.Tasks[i].App == a && k.ownsTask(TaskID(i)) {
			k.killTask(TaskID(i))
		}
	}
	for i := range k.cfg.Alarms {
		if k.cfg.Alarms[i].App == a && k.ownsCounter(k.cfg.Alarms[i].Counter) {
			k.cancelAlarm(AlarmID(i), AlarmIdle)
		}
	}
	for i := range k.cfg.ScheduleTables {
		if k.cfg.ScheduleTables[i].App == a && k.tableCore(ScheduleTableID(i)) == k.core {
			if k.tables[i].status != TableStopped {
				k.stopTable(ScheduleTableID(i))
			}
		}
	}
	ac := &k.cfg.Applications[a]
	if restart && ac.Restartable {
		k.apps[a] = AppRestarting
		k.logf("application %s restarting", ac.Name)
		if st := k.activate(ac.RestartTask); st != StatusOK {
			k.report(ServiceTerminateApplication, st, uint32(a), uint32(ac.RestartTask))
		}
	} else {
		k.apps[a] = AppTerminated
		k.logf("application %s terminated", ac.Name)
	}
	k.version++
}

// AllowAccess makes the restarting application of the caller accessible.
func (k *Kernel) AllowAccess() Status {
	return k.service(ServiceTerminateApplication, 0, 2, func(c caller) Status {
		a := k.appOf(c)
		if a == InvalidApplication {
			return StatusCallLevel
		}
		if k.apps[a] != AppRestarting {
			return StatusState
		}
		k.apps[a] = AppAccessible
		k.version++
		return StatusOK
	})
}
