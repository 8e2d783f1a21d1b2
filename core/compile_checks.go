package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ModuleRegistry  = (*ProviderModuleRegistry)(nil)
	_ AttemptStore    = (*MemoryAttemptStore)(nil)
	_ MetricsRecorder = NopMetricsRecorder{}
	_ ResultListener  = ResultListenerFunc(nil)
	_ AttemptReporter = (*attemptReporter)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
