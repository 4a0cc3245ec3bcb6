package openhab

// Logger is the structured logging surface used by this package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Instrumentation receives counters from controllers. *metrics.Metrics
// satisfies it.
type Instrumentation interface {
	ObserveEvent(controller, eventType string)
	ObserveConnection(controller, state string)
	ObserveParseError(controller string)
	ObserveRequest(controller, kind string, ok bool)
}

type noopInstrumentation struct{}

func (noopInstrumentation) ObserveEvent(string, string)        {}
func (noopInstrumentation) ObserveConnection(string, string)   {}
func (noopInstrumentation) ObserveParseError(string)           {}
func (noopInstrumentation) ObserveRequest(string, string, bool) {}
