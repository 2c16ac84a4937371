package kernel

type tableDyn struct {
	status ScheduleTableStatus
	// next is the expiry point the table alarm waits for; len(Points) marks
	// the final delay of a table that will not loop.
	next int
	// adj is the deviation still to be corrected; positive values lengthen
	// the table.
	adj int64
	// synced is set while an explicit table follows SyncScheduleTable.
	synced bool
	chain  ScheduleTableID
}

func (k *Kernel) tableAlarm(st ScheduleTableID) AlarmID {
	return AlarmID(len(k.cfg.Alarms) + int(st))
}

func (k *Kernel) tableCore(st ScheduleTableID) CoreID {
	return k.cfg.Counters[k.cfg.ScheduleTables[st].Counter].Core
}

// tableService wraps the checks shared by every schedule table service.
func (k *Kernel) tableService(svc ServiceID, st ScheduleTableID, p1 uint32, fn func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status) Status {
	return k.service(svc, uint32(st), p1, func(c caller) Status {
		if int(st) >= len(k.cfg.ScheduleTables) {
			return StatusID
		}
		sc := &k.cfg.ScheduleTables[st]
		if !k.permitted(c, sc.Permissions) {
			return StatusPermission
		}
		return fn(c, sc, &k.tables[st])
	})
}

// StartScheduleTableRel starts table st offset ticks from now.
func (k *Kernel) StartScheduleTableRel(st ScheduleTableID, offset Tick) Status {
	return k.tableService(ServiceStartScheduleTableRel, st, uint32(offset), func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if core := k.tableCore(st); core != k.core {
			return k.remote(core, opStartTableRel, uint64(st), uint64(offset), 0).st
		}
		return k.startTableRel(st, offset)
	})
}

func (k *Kernel) startTableRel(st ScheduleTableID, offset Tick) Status {
	sc := &k.cfg.ScheduleTables[st]
	if sc.Sync == SyncImplicit {
		return StatusID
	}
	limit := k.cfg.Counters[sc.Counter].MaxAllowedValue
	o0 := sc.Points[0].Offset
	if offset == 0 || uint64(offset) > uint64(limit)-uint64(o0) {
		return StatusValue
	}
	if s := k.tableStartable(st); s != StatusOK {
		return s
	}
	k.runTable(st, TableRunning, uint64(offset)+uint64(o0))
	return StatusOK
}

// StartScheduleTableAbs starts table st when its counter reaches start.
func (k *Kernel) StartScheduleTableAbs(st ScheduleTableID, start Tick) Status {
	return k.tableService(ServiceStartScheduleTableAbs, st, uint32(start), func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if core := k.tableCore(st); core != k.core {
			return k.remote(core, opStartTableAbs, uint64(st), uint64(start), 0).st
		}
		return k.startTableAbs(st, start)
	})
}

func (k *Kernel) startTableAbs(st ScheduleTableID, start Tick) Status {
	sc := &k.cfg.ScheduleTables[st]
	if start > k.cfg.Counters[sc.Counter].MaxAllowedValue {
		return StatusValue
	}
	if s := k.tableStartable(st); s != StatusOK {
		return s
	}
	m := k.modulus(sc.Counter)
	d := (uint64(start) + m - uint64(k.counters[sc.Counter].value)) % m
	if d == 0 {
		d = m
	}
	status := TableRunning
	if sc.Sync == SyncImplicit {
		status = TableRunningSync
	}
	k.runTable(st, status, d+uint64(sc.Points[0].Offset))
	return StatusOK
}

// tableStartable checks that a table and its alarm are both idle. A busy
// alarm behind a stopped table is an inconsistency and is reported as such.
func (k *Kernel) tableStartable(st ScheduleTableID) Status {
	if k.tables[st].status != TableStopped {
		return StatusState
	}
	switch k.alarms[k.tableAlarm(st)].state {
	case AlarmInUse:
		k.logf("schedule table %s: alarm busy while stopped", k.cfg.ScheduleTables[st].Name)
		return StatusState
	case AlarmQuarantined:
		return StatusQuarantined
	}
	return StatusOK
}

// runTable enters status and arms the first expiry point delay ticks from now.
func (k *Kernel) runTable(st ScheduleTableID, status ScheduleTableStatus, delay uint64) {
	td := &k.tables[st]
	td.status = status
	td.next = 0
	td.adj = 0
	td.synced = status == TableRunningSync
	k.armTable(st, delay+k.counters[k.cfg.ScheduleTables[st].Counter].err)
	k.version++
}

// armTable arms the table alarm d ticks after the queue base.
func (k *Kernel) armTable(st ScheduleTableID, d uint64) {
	a := k.tableAlarm(st)
	ad := &k.alarms[a]
	ad.state = AlarmInUse
	ad.period = 0
	k.insertAlarm(k.cfg.ScheduleTables[st].Counter, a, d)
}

// StartScheduleTableSynchron arms an explicitly synchronised table that
// waits for the first SyncScheduleTable.
func (k *Kernel) StartScheduleTableSynchron(st ScheduleTableID) Status {
	return k.tableService(ServiceStartScheduleTableSynchron, st, 0, func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if sc.Sync != SyncExplicit {
			return StatusID
		}
		if k.tableCore(st) != k.core {
			return StatusAccess
		}
		if s := k.tableStartable(st); s != StatusOK {
			return s
		}
		td.status = TableWaiting
		td.next = 0
		td.adj = 0
		k.version++
		return StatusOK
	})
}

// SyncScheduleTable tells table st that the global time within its period
// is value.
func (k *Kernel) SyncScheduleTable(st ScheduleTableID, value Tick) Status {
	return k.tableService(ServiceSyncScheduleTable, st, uint32(value), func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if sc.Sync != SyncExplicit {
			return StatusID
		}
		if k.tableCore(st) != k.core {
			return StatusAccess
		}
		if value >= sc.Period {
			return StatusValue
		}
		switch {
		case td.status == TableWaiting:
			k.runTable(st, TableRunningSync, uint64(sc.Period-value)+uint64(sc.Points[0].Offset))
		case td.status.Running():
			td.adj = k.deviation(st, value)
			td.synced = true
			k.syncStatus(st)
		default:
			return StatusState
		}
		return StatusOK
	})
}

// localTime returns the position of a running table within its period.
func (k *Kernel) localTime(st ScheduleTableID) int64 {
	sc := &k.cfg.ScheduleTables[st]
	td := &k.tables[st]
	off := int64(sc.Period)
	if td.next < len(sc.Points) {
		off = int64(sc.Points[td.next].Offset)
	}
	p := int64(sc.Period)
	loc := (off - int64(k.remaining(k.tableAlarm(st)))) % p
	if loc < 0 {
		loc += p
	}
	return loc
}

// deviation returns local minus global time folded into (-period/2, period/2].
func (k *Kernel) deviation(st ScheduleTableID, global Tick) int64 {
	p := int64(k.cfg.ScheduleTables[st].Period)
	d := (k.localTime(st) - int64(global)) % p
	if d < 0 {
		d += p
	}
	if d > p/2 {
		d -= p
	}
	return d
}

func (k *Kernel) syncStatus(st ScheduleTableID) {
	sc := &k.cfg.ScheduleTables[st]
	td := &k.tables[st]
	if sc.Sync != SyncExplicit || !td.synced || !td.status.Running() {
		return
	}
	dev := td.adj
	if dev < 0 {
		dev = -dev
	}
	if dev <= int64(sc.Precision) {
		td.status = TableRunningSync
	} else {
		td.status = TableRunning
	}
}

// SetScheduleTableAsync stops synchronising table st.
func (k *Kernel) SetScheduleTableAsync(st ScheduleTableID) Status {
	return k.tableService(ServiceSetScheduleTableAsync, st, 0, func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if sc.Sync != SyncExplicit {
			return StatusID
		}
		if k.tableCore(st) != k.core {
			return StatusAccess
		}
		if !td.status.Running() {
			return StatusState
		}
		td.status = TableRunning
		td.adj = 0
		td.synced = false
		return StatusOK
	})
}

// StopScheduleTable stops table st together with any table chained to it.
func (k *Kernel) StopScheduleTable(st ScheduleTableID) Status {
	return k.tableService(ServiceStopScheduleTable, st, 0, func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if core := k.tableCore(st); core != k.core {
			return k.remote(core, opStopTable, uint64(st), 0, 0).st
		}
		return k.stopTable(st)
	})
}

func (k *Kernel) stopTable(st ScheduleTableID) Status {
	td := &k.tables[st]
	switch td.status {
	case TableStopped:
		return StatusNoFunc
	case TableNext:
		for i := range k.tables {
			if k.tables[i].chain == st {
				k.tables[i].chain = InvalidScheduleTable
			}
		}
	default:
		k.cancelAlarm(k.tableAlarm(st), AlarmIdle)
		if nx := td.chain; nx != InvalidScheduleTable {
			k.tables[nx].status = TableStopped
		}
	}
	td.status = TableStopped
	td.chain = InvalidScheduleTable
	td.next = 0
	td.adj = 0
	td.synced = false
	k.version++
	return StatusOK
}

// NextScheduleTable makes to start when from ends its current round.
func (k *Kernel) NextScheduleTable(from, to ScheduleTableID) Status {
	return k.tableService(ServiceNextScheduleTable, from, uint32(to), func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		if int(to) >= len(k.cfg.ScheduleTables) {
			return StatusID
		}
		tc := &k.cfg.ScheduleTables[to]
		if !k.permitted(c, tc.Permissions) {
			return StatusPermission
		}
		if tc.Counter != sc.Counter || tc.Sync != sc.Sync {
			return StatusID
		}
		if k.tableCore(from) != k.core {
			return StatusAccess
		}
		if td.status == TableStopped || td.status == TableNext {
			return StatusNoFunc
		}
		if k.tables[to].status != TableStopped {
			return StatusState
		}
		if old := td.chain; old != InvalidScheduleTable {
			k.tables[old].status = TableStopped
		}
		td.chain = to
		k.tables[to].status = TableNext
		k.version++
		return StatusOK
	})
}

// GetScheduleTableStatus returns the status of table st.
func (k *Kernel) GetScheduleTableStatus(st ScheduleTableID) (ScheduleTableStatus, Status) {
	var s ScheduleTableStatus
	status := k.tableService(ServiceGetScheduleTableStatus, st, 0, func(c caller, sc *ScheduleTableConfig, td *tableDyn) Status {
		s = td.status
		return StatusOK
	})
	return s, status
}

// tableExpire processes the expiry point table st was waiting for and arms
// the next one.
func (k *Kernel) tableExpire(st ScheduleTableID) {
	sc := &k.cfg.ScheduleTables[st]
	td := &k.tables[st]
	n := len(sc.Points)
	if td.next >= n {
		k.tableEnd(st)
		return
	}
	i := td.next
	for _, act := range sc.Points[i].Actions {
		if s := k.runAction(act); s != StatusOK {
			k.report(ServiceAlarmAction, s, uint32(k.tableAlarm(st)), uint32(i))
		}
	}
	if td.status == TableStopped || k.halted {
		return
	}

	var delay uint64
	next := i + 1
	switch {
	case next < n:
		delay = uint64(sc.Points[next].Offset - sc.Points[i].Offset)
	case sc.Repeating && td.chain == InvalidScheduleTable:
		next = 0
		delay = uint64(sc.Period-sc.Points[i].Offset) + uint64(sc.Points[0].Offset)
	default:
		next = n
		delay = uint64(sc.Period - sc.Points[i].Offset)
	}
	if next < n {
		delay = k.adjust(st, next, delay)
	}
	td.next = next
	k.version++
	if delay == 0 {
		k.tableEnd(st)
		return
	}
	k.armTable(st, delay)
}

// adjust spends part of the pending deviation on the delay towards point idx,
// within the bounds of that point.
func (k *Kernel) adjust(st ScheduleTableID, idx int, delay uint64) uint64 {
	td := &k.tables[st]
	p := &k.cfg.ScheduleTables[st].Points[idx]
	switch {
	case td.adj > 0:
		inc := uint64(td.adj)
		if m := uint64(p.MaxIncrease); inc > m {
			inc = m
		}
		delay += inc
		td.adj -= int64(inc)
	case td.adj < 0:
		dec := uint64(-td.adj)
		if m := uint64(p.MaxDecrease); dec > m {
			dec = m
		}
		if dec > delay-1 {
			dec = delay - 1
		}
		delay -= dec
		td.adj += int64(dec)
	}
	k.syncStatus(st)
	return delay
}

// tableEnd finishes a table after its final delay and starts its successor.
func (k *Kernel) tableEnd(st ScheduleTableID) {
	td := &k.tables[st]
	nx := td.chain
	td.status = TableStopped
	td.chain = InvalidScheduleTable
	td.next = 0
	td.adj = 0
	k.version++
	if nx == InvalidScheduleTable {
		return
	}
	nc := &k.cfg.ScheduleTables[nx]
	status := TableRunning
	if nc.Sync == SyncImplicit {
		status = TableRunningSync
	}
	ntd := &k.tables[nx]
	ntd.status = status
	ntd.next = 0
	ntd.adj = 0
	ntd.synced = false
	if o0 := nc.Points[0].Offset; o0 > 0 {
		k.armTable(nx, uint64(o0))
		return
	}
	k.tableExpire(nx)
}
