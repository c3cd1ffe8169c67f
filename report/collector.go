package report

import (
	"sort"
	"sync"

	"github.com/mezonai/mmn-replay/events"
	"github.com/mezonai/mmn-replay/exception"
)

const slowestSlotsKept = 10

// Collector folds replay events into a VerificationReport. It carries
// no verification logic of its own; everything it knows arrives on the
// event bus.
type Collector struct {
	mu     sync.Mutex
	report VerificationReport

	bus   *events.EventBus
	subID events.SubscriberID
	done  chan struct{}
}

func NewCollector() *Collector {
	return &Collector{}
}

// Attach subscribes the collector to the bus and starts consuming.
func (c *Collector) Attach(bus *events.EventBus) {
	id, ch := bus.SubscribeLossless()
	c.bus = bus
	c.subID = id
	c.done = make(chan struct{})

	exception.SafeGo("report_collector", func() {
		defer close(c.done)
		for ev := range ch {
			c.apply(ev)
		}
	})
}

// Close unsubscribes and waits until buffered events are folded in.
// Call after the final RunFinished has been published.
func (c *Collector) Close() {
	if c.bus == nil {
		return
	}
	c.bus.Unsubscribe(c.subID)
	<-c.done
	c.bus = nil
}

// Report returns a copy of the aggregated report.
func (c *Collector) Report() *VerificationReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.report
	out.TxFaults = append([]TxFault(nil), c.report.TxFaults...)
	out.SlowestSlots = append([]SlotTiming(nil), c.report.SlowestSlots...)
	sort.Slice(out.SlowestSlots, func(i, j int) bool {
		return out.SlowestSlots[i].Elapsed > out.SlowestSlots[j].Elapsed
	})
	if c.report.Divergence != nil {
		div := *c.report.Divergence
		out.Divergence = &div
	}
	return &out
}

func (c *Collector) apply(ev events.ReplayEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case *events.RunStarted:
		c.report.RunID = e.RunID()
		c.report.StartSlot = e.Slot()
		c.report.TargetSlot = e.TargetSlot()
		c.report.StartedAt = e.Timestamp()
	case *events.SlotVerified:
		c.report.SlotsVerified++
		c.report.TxsReplayed += e.TxCount()
		c.report.LastVerifiedSlot = e.Slot()
		c.keepSlowest(SlotTiming{Slot: e.Slot(), TxCount: e.TxCount(), Elapsed: e.Elapsed()})
	case *events.SlotSkipped:
		c.report.SlotsSkipped++
	case *events.DivergenceFound:
		detail := &DivergenceDetail{
			Slot:     e.Slot(),
			Expected: HashHex(e.Expected()),
			Actual:   HashHex(e.Actual()),
		}
		if idx := e.TxIndex(); idx != nil {
			v := *idx
			detail.TxIndex = &v
		}
		c.report.Divergence = detail
	case *events.ExecutionFault:
		c.report.TxFaults = append(c.report.TxFaults, TxFault{
			Slot:    e.Slot(),
			TxIndex: e.TxIndex(),
			TxHash:  e.TxHash(),
			Reason:  e.Reason(),
		})
	case *events.CheckpointSaved:
		c.report.LastCheckpointSlot = e.Slot()
		c.report.CheckpointCount++
	case *events.RunFinished:
		c.report.Status = Status(e.Status())
		c.report.FinishedAt = e.Timestamp()
		c.report.Elapsed = e.Elapsed()
		// Authoritative: SlotVerified events may have been dropped for
		// lossy subscribers, the finish event always carries the tail.
		if e.Slot() > c.report.LastVerifiedSlot {
			c.report.LastVerifiedSlot = e.Slot()
		}
	}
}

// keepSlowest retains the top slot timings by elapsed time.
func (c *Collector) keepSlowest(t SlotTiming) {
	if len(c.report.SlowestSlots) < slowestSlotsKept {
		c.report.SlowestSlots = append(c.report.SlowestSlots, t)
		return
	}
	minIdx := 0
	for i, s := range c.report.SlowestSlots {
		if s.Elapsed < c.report.SlowestSlots[minIdx].Elapsed {
			minIdx = i
		}
	}
	if t.Elapsed > c.report.SlowestSlots[minIdx].Elapsed {
		c.report.SlowestSlots[minIdx] = t
	}
}
