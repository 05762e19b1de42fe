package engine

import (
	"sync"

	"github.com/sirupsen/logrus"

	"recalc/address"
	"recalc/interpreter"
	"recalc/model"
)

var qlog = logrus.WithField("module", "engine")

type queueAction uint8

const (
	actionNone queueAction = iota
	actionCellAdded
	actionTerminate
)

type queueEntry struct {
	fc  *model.FormulaCell
	pos address.Address
}

// workerData is the per-worker mailbox: the manager hands a worker one
// cell at a time under the worker's own mutex and condition variable.
type workerData struct {
	mu        sync.Mutex
	cond      *sync.Cond
	cell      *queueEntry
	terminate bool
}

func newWorkerData() *workerData {
	w := &workerData{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// queueManager owns the FIFO of cells to interpret and the queue of idle
// workers. The driver feeds cells in topological order; a worker may
// start a cell before its precedents finish and will block on the
// precedent's calc status instead.
type queueManager struct {
	cxt *model.Context

	mu     sync.Mutex
	cond   *sync.Cond
	cells  []queueEntry
	action queueAction

	idleMu   sync.Mutex
	idleCond *sync.Cond
	idle     []*workerData

	workers   []*workerData
	workersWG sync.WaitGroup
	managerWG sync.WaitGroup
	ready     chan struct{}
}

// newQueueManager spins up the manager goroutine and workerCount
// workers. workerCount must be >= 1.
func newQueueManager(cxt *model.Context, workerCount int) *queueManager {
	q := &queueManager{cxt: cxt, ready: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	q.idleCond = sync.NewCond(&q.idleMu)

	for i := 0; i < workerCount; i++ {
		w := newWorkerData()
		q.workers = append(q.workers, w)
		q.workersWG.Add(1)
		go q.workerMain(w)
	}
	q.managerWG.Add(1)
	go q.managerMain()

	// once the manager holds the queue mutex, cells can only be added
	// while it waits, so no added-cell signal is ever lost
	<-q.ready
	return q
}

// workerMain loops: register as idle, wait for an assignment, interpret
// it, repeat. The worker holds its own mutex except while waiting, so
// assignments only land while it waits.
func (q *queueManager) workerMain(w *workerData) {
	defer q.workersWG.Done()
	w.mu.Lock()
	for !w.terminate {
		q.idleMu.Lock()
		q.idle = append(q.idle, w)
		q.idleCond.Broadcast()
		q.idleMu.Unlock()

		w.cond.Wait()
		if w.cell == nil {
			continue
		}
		entry := *w.cell
		w.cell = nil
		interpreter.InterpretCell(q.cxt, entry.fc, entry.pos)
	}
	w.mu.Unlock()
}

// assignLocked hands the front cell to an idle worker. Caller holds
// q.mu and q.idleMu.
func (q *queueManager) assignLocked() {
	w := q.idle[0]
	q.idle = q.idle[1:]

	w.mu.Lock()
	entry := q.cells[0]
	q.cells = q.cells[1:]
	w.cell = &entry
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (q *queueManager) managerMain() {
	defer q.managerWG.Done()
	q.mu.Lock()
	close(q.ready)

	for q.action != actionTerminate {
		q.cond.Wait()
		if q.action != actionCellAdded {
			continue
		}
		q.action = actionNone

		q.idleMu.Lock()
		for len(q.idle) > 0 && len(q.cells) > 0 {
			q.assignLocked()
		}
		q.idleMu.Unlock()
	}

	// termination requested: no new cells will arrive, finish the rest
	for len(q.cells) > 0 {
		q.idleMu.Lock()
		for len(q.idle) == 0 {
			q.idleCond.Wait()
		}
		for len(q.idle) > 0 && len(q.cells) > 0 {
			q.assignLocked()
		}
		q.idleMu.Unlock()
	}
	q.mu.Unlock()

	q.terminateWorkers()
}

// terminateWorkers asks every worker to exit and joins them. Acquiring a
// worker's mutex waits out any in-flight interpretation.
func (q *queueManager) terminateWorkers() {
	for _, w := range q.workers {
		w.mu.Lock()
		w.terminate = true
		w.cond.Broadcast()
		w.mu.Unlock()
	}
	q.workersWG.Wait()
}

// addCell enqueues one cell for interpretation.
func (q *queueManager) addCell(fc *model.FormulaCell, pos address.Address) {
	q.mu.Lock()
	q.cells = append(q.cells, queueEntry{fc: fc, pos: pos})
	q.action = actionCellAdded
	q.mu.Unlock()
	q.cond.Broadcast()
}

// terminate signals the manager that no more cells will be added and
// joins the whole pool once the remaining cells are done.
func (q *queueManager) terminate() {
	q.mu.Lock()
	q.action = actionTerminate
	q.mu.Unlock()
	q.cond.Broadcast()
	q.managerWG.Wait()
}
