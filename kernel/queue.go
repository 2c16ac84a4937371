package kernel

// The ready queue is an index-linked list over the task arena, ordered by
// current priority, highest first. The running task stays in the queue and
// sits at its head after every dispatch.

// enqueue inserts t at its current priority. With ahead set it goes in front
// of its equal-priority peers, otherwise behind them.
func (k *Kernel) enqueue(t TaskID, ahead bool) {
	p := k.tasks[t].prio
	prev := InvalidTask
	cur := k.readyHead
	for cur != InvalidTask {
		cp := k.tasks[cur].prio
		if cp < p || (ahead && cp == p) {
			break
		}
		prev, cur = cur, k.tasks[cur].next
	}
	k.tasks[t].next = cur
	if prev == InvalidTask {
		k.readyHead = t
	} else {
		k.tasks[prev].next = t
	}
}

// dequeue unlinks t, reporting whether it was queued.
func (k *Kernel) dequeue(t TaskID) bool {
	prev := InvalidTask
	for cur := k.readyHead; cur != InvalidTask; cur = k.tasks[cur].next {
		if cur == t {
			if prev == InvalidTask {
				k.readyHead = k.tasks[cur].next
			} else {
				k.tasks[prev].next = k.tasks[cur].next
			}
			k.tasks[t].next = InvalidTask
			return true
		}
		prev = cur
	}
	return false
}

// setPriority changes the current priority of a queued task. The task keeps
// the head of its new priority group, so raising never loses ground and
// lowering behaves like a preemption.
func (k *Kernel) setPriority(t TaskID, p Priority) {
	d := &k.tasks[t]
	if d.prio == p {
		return
	}
	queued := k.dequeue(t)
	d.prio = p
	if queued {
		k.enqueue(t, true)
	}
}

// dispatchable reports whether the core may switch tasks now.
func (k *Kernel) dispatchable() bool {
	return k.started && !k.halted && !k.dispatching && len(k.stack) == 0 &&
		k.disableAll+k.suspendAll+k.suspendOS == 0
}

// dispatch makes the head of the ready queue the running task.
func (k *Kernel) dispatch() {
	if !k.dispatchable() {
		return
	}
	k.dispatching = true
	for k.readyHead != k.current {
		k.sample()
		if old := k.current; old != InvalidTask {
			k.postTask()
			d := &k.tasks[old]
			if d.state == TaskRunning {
				d.state = TaskReadySync
				if k.asyncPreempt {
					d.state = TaskReadyAsync
				}
				k.trace(old, d.state)
			}
			k.current = InvalidTask
		}
		t := k.readyHead
		if t == InvalidTask {
			break
		}
		d := &k.tasks[t]
		d.fresh = d.state == TaskNew
		d.state = TaskRunning
		if rp := k.cfg.Tasks[t].RunPriority; d.prio < rp {
			// Already the head; raising cannot reorder the queue.
			d.prio = rp
		}
		k.current = t
		k.trace(t, TaskRunning)
		if h := k.sys.opts.Hooks.PreTask; h != nil {
			k.runHook(func() { h(k) })
		}
	}
	k.asyncPreempt = false
	k.dispatching = false
}

// postTask runs the PostTask hook for the task that is about to lose the CPU.
func (k *Kernel) postTask() {
	if h := k.sys.opts.Hooks.PostTask; h != nil {
		k.runHook(func() { h(k) })
	}
}

// ReadyQueue returns the ready queue, running task first.
func (k *Kernel) ReadyQueue() []TaskID {
	var q []TaskID
	for cur := k.readyHead; cur != InvalidTask; cur = k.tasks[cur].next {
		q = append(q, cur)
	}
	return q
}
