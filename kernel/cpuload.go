package kernel

// cpuLoad measures the busy share of the core over a ring of fixed
// intervals.
type cpuLoad struct {
	interval uint64
	windows  int

	busy    [MaxLoadWindows]uint64
	filled  int
	idx     int
	curBusy uint64
	curTime uint64
	peak    uint8
}

func (l *cpuLoad) init(c CPULoadConfig) {
	*l = cpuLoad{interval: c.Interval, windows: c.Windows}
}

func (l *cpuLoad) account(delta uint64, busy bool) {
	if l.interval == 0 {
		return
	}
	for delta > 0 {
		room := l.interval - l.curTime
		step := delta
		if step > room {
			step = room
		}
		l.curTime += step
		if busy {
			l.curBusy += step
		}
		delta -= step
		if l.curTime == l.interval {
			l.roll()
		}
	}
}

func (l *cpuLoad) roll() {
	l.busy[l.idx] = l.curBusy
	if p := percent(l.curBusy, l.interval); p > l.peak {
		l.peak = p
	}
	l.idx = (l.idx + 1) % l.windows
	if l.filled < l.windows {
		l.filled++
	}
	l.curBusy, l.curTime = 0, 0
}

func (l *cpuLoad) average() uint8 {
	if l.filled == 0 {
		return percent(l.curBusy, l.curTime)
	}
	var sum uint64
	for i := 0; i < l.filled; i++ {
		sum += l.busy[i]
	}
	return percent(sum, uint64(l.filled)*l.interval)
}

func percent(part, whole uint64) uint8 {
	if whole == 0 {
		return 0
	}
	return uint8(part * 100 / whole)
}

// GetCpuLoad returns the average load over the configured windows, or the
// highest single-window load seen since the last reset when peak is set.
func (k *Kernel) GetCpuLoad(peak bool) (uint8, Status) {
	if k.load.interval == 0 {
		return 0, StatusNoFunc
	}
	k.CheckBudget()
	if peak {
		return k.load.peak, StatusOK
	}
	return k.load.average(), StatusOK
}

// ResetCpuLoad discards every measurement.
func (k *Kernel) ResetCpuLoad() {
	k.CheckBudget()
	k.load.init(CPULoadConfig{Interval: k.load.interval, Windows: k.load.windows})
}

// ResetPeakCpuLoad forgets the peak load.
func (k *Kernel) ResetPeakCpuLoad() {
	k.load.peak = 0
}
