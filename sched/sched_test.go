package sched

import (
	"testing"

	"rvkernel/hart"
)

func TestEnqueueDequeueFIFOWithinBand(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))
	a := MkTask(1, 1, 10)
	b := MkTask(2, 2, 10)
	sq.Enqueue(a, 10)
	sq.Enqueue(b, 10)

	if got := sq.Dequeue(); got != a {
		t.Fatalf("expected FIFO order within a band, got pid %d", got.Pid)
	}
	if got := sq.Dequeue(); got != b {
		t.Fatalf("expected FIFO order within a band, got pid %d", got.Pid)
	}
	if sq.Dequeue() != nil {
		t.Fatal("expected empty queue")
	}
}

func TestDequeuePrefersHigherPriorityBand(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))
	low := MkTask(1, 1, 30)
	high := MkTask(2, 2, 5)
	sq.Enqueue(low, 30)
	sq.Enqueue(high, 5)

	if got := sq.Dequeue(); got != high {
		t.Fatalf("expected higher-priority (lower band) task first, got pid %d", got.Pid)
	}
	if got := sq.Dequeue(); got != low {
		t.Fatalf("expected remaining low-priority task, got pid %d", got.Pid)
	}
}

func TestInterleavedEnqueueDequeueMaintainsBands(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))
	t1 := MkTask(1, 1, 20)
	t2 := MkTask(2, 2, 20)
	t3 := MkTask(3, 3, 5)
	sq.Enqueue(t1, 20)
	sq.Enqueue(t2, 20)
	if got := sq.Dequeue(); got != t1 {
		t.Fatalf("expected t1 first, got pid %d", got.Pid)
	}
	// t3 arrives after t1 left, at a higher-priority band than t2.
	sq.Enqueue(t3, 5)
	if got := sq.Dequeue(); got != t3 {
		t.Fatalf("expected newly-arrived high-priority task before t2, got pid %d", got.Pid)
	}
	if got := sq.Dequeue(); got != t2 {
		t.Fatalf("expected t2 last, got pid %d", got.Pid)
	}
}

func TestAgeDecaysQueuePriorityTowardZero(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))
	low := MkTask(1, 1, MaxPriority-1)
	sq.Enqueue(low, MaxPriority-1)

	for i := 0; i < MaxPriority-1; i++ {
		sq.Age()
	}
	if low.QueuePriority != 0 {
		t.Fatalf("expected queue priority floored at 0 after enough aging, got %d", low.QueuePriority)
	}
	sq.Age()
	if low.QueuePriority != 0 {
		t.Fatalf("expected queue priority to stay floored at 0, got %d", low.QueuePriority)
	}
}

func TestAgingEventuallyPromotesStarvedTask(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))
	h := MkTask(1, 1, 0)
	l := MkTask(2, 2, MaxPriority-1)
	sq.Enqueue(h, 0)
	sq.Enqueue(l, MaxPriority-1)

	// h keeps winning every round; re-enqueue it each time at its
	// static priority while l only ages, as a cpu-bound-H workload
	// would look like to the scheduler.
	scheduledL := false
	for round := 0; round < MaxPriority; round++ {
		sq.Age()
		winner := sq.Dequeue()
		if winner == l {
			scheduledL = true
			break
		}
		sq.Enqueue(winner, winner.Priority)
	}
	if !scheduledL {
		t.Fatal("expected low-priority task to run within MaxPriority rounds per spec.md's fairness property")
	}
}

func TestSleepAndWakeExpired(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))
	s := MkTask(1, 1, DefaultPriority)
	sq.Sleep(s, 1000)

	sq.WakeExpired(999)
	if s.State != Sleeping {
		t.Fatal("expected task to remain sleeping before its deadline")
	}
	sq.WakeExpired(1000)
	if s.State != Ready {
		t.Fatalf("expected task to be woken at its deadline, state=%v", s.State)
	}
	if got := sq.Dequeue(); got != s {
		t.Fatal("expected woken task to be enqueued and dequeuable")
	}
}

func TestSleepMeasuresDurationFromQueuesCurrentTick(t *testing.T) {
	sq := MkScheduleQueue(MkTask(0, 0, MaxPriority-1))

	// advance the queue's tick mark past zero before the sleep under test,
	// so a duration stored as an absolute deadline (rather than added to
	// the current tick) would wake far too early.
	sq.WakeExpired(500)

	s := MkTask(1, 1, DefaultPriority)
	sq.Sleep(s, 1000) // should wake at tick 500+1000 = 1500, not 1000

	sq.WakeExpired(1000)
	if s.State != Sleeping {
		t.Fatalf("expected task to still be sleeping at tick 1000, got %v", s.State)
	}
	sq.WakeExpired(1499)
	if s.State != Sleeping {
		t.Fatalf("expected task to still be sleeping at tick 1499, got %v", s.State)
	}
	sq.WakeExpired(1500)
	if s.State != Ready {
		t.Fatalf("expected task woken at tick 1500, got %v", s.State)
	}
}

func TestRunNextFallsBackToIdleWhenEmpty(t *testing.T) {
	idle := MkTask(0, 0, MaxPriority-1)
	sq := MkScheduleQueue(idle)
	hf := hart.MkHartFrame(0)

	got := sq.RunNext(hf)
	if got != idle {
		t.Fatal("expected idle task when ready queue is empty")
	}
	if idle.State != Running {
		t.Fatalf("expected idle task marked Running, got %v", idle.State)
	}
}

func TestRunNextRestoresTaskFrame(t *testing.T) {
	idle := MkTask(0, 0, MaxPriority-1)
	sq := MkScheduleQueue(idle)
	task := MkTask(1, 1, DefaultPriority)
	task.Frame.Sepc = 0x8000
	sq.Enqueue(task, DefaultPriority)

	hf := hart.MkHartFrame(0)
	got := sq.RunNext(hf)
	if got != task {
		t.Fatal("expected the enqueued task to be picked")
	}
	if hf.Sepc != 0x8000 {
		t.Fatalf("expected hart frame restored from task frame, got %x", hf.Sepc)
	}
	if hf.Current != &task.Frame {
		t.Fatal("expected hart's current pointer to reference the running task's frame")
	}
}
