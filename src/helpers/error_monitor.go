package helpers

import (
	"sync"
	"time"

	"market-relay/src/logger"
	"market-relay/src/utils"
)

// -----------------------------------------------------------------------------

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const maxErrorLogs = 100

// ErrorLog is one recorded failure.
type ErrorLog struct {
	Message   string                 `json:"message"`
	Timestamp int64                  `json:"timestamp"`
	Severity  Severity               `json:"severity"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// -----------------------------------------------------------------------------

// ErrorMonitor keeps the most recent errors (newest first) for display and
// diagnostics.
type ErrorMonitor struct {
	mu     sync.Mutex
	logs   *utils.RingBuffer[ErrorLog]
	logger *logger.Logger
	now    func() time.Time
}

func NewErrorMonitor() *ErrorMonitor {
	return &ErrorMonitor{
		logs:   utils.NewRingBuffer[ErrorLog](maxErrorLogs),
		logger: logger.NewLogger("ErrorMonitor"),
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// LogError records err. An empty severity means medium.
func (m *ErrorMonitor) LogError(err error, severity Severity, ctx map[string]interface{}) {
	if err == nil {
		return
	}
	if severity == "" {
		severity = SeverityMedium
	}

	entry := ErrorLog{
		Message:   err.Error(),
		Timestamp: m.now().UnixMilli(),
		Severity:  severity,
		Context:   ctx,
	}

	m.mu.Lock()
	m.logs.Append(entry)
	m.mu.Unlock()

	m.logger.Debug("Error logged (%s): %s", severity, entry.Message)
}

// -----------------------------------------------------------------------------

// Logs returns a copy of the recorded errors, newest first.
func (m *ErrorMonitor) Logs() []ErrorLog {
	m.mu.Lock()
	all := m.logs.GetAll()
	m.mu.Unlock()

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all
}

func (m *ErrorMonitor) Clear() {
	m.mu.Lock()
	m.logs.Clear()
	m.mu.Unlock()
}
