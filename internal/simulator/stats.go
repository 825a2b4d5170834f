package simulator

import "sync/atomic"

type Phase int32

const (
	Initializing Phase = iota
	Running
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Stats are updated by the driver loop and read concurrently by the monitoring API.
type Stats struct {
	iterations atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
}

type Totals struct {
	Iterations  int64   `json:"iterations"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

func (s *Stats) Snapshot() Totals {
	ok, failed := s.successful.Load(), s.failed.Load()
	return Totals{
		Iterations:  s.iterations.Load(),
		Successful:  ok,
		Failed:      failed,
		SuccessRate: SuccessRate(ok, failed),
	}
}

// SuccessRate is ok/(ok+failed), or 0 when nothing was sent.
func SuccessRate(ok, failed int64) float64 {
	total := ok + failed
	if total <= 0 {
		return 0
	}
	return float64(ok) / float64(total)
}
