package reporter

// Reporter defines the interface for progress reporting.
type Reporter interface {
	Initialization(summary InitializationSummary)
	StageProgress(update StageProgress)
	DetectorStarted(start DetectorStart)
	DetectorProgress(progress ProgressSnapshot)
	DetectorComplete(summary DetectorSummary)
	ProbeComplete(outcome ProbeOutcome)
	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	BatchStarted(info BatchStartInfo)
	FileProgress(context FileProgressContext)
	BatchComplete(summary BatchSummary)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) Initialization(InitializationSummary) {}
func (NullReporter) StageProgress(StageProgress)          {}
func (NullReporter) DetectorStarted(DetectorStart)        {}
func (NullReporter) DetectorProgress(ProgressSnapshot)    {}
func (NullReporter) DetectorComplete(DetectorSummary)     {}
func (NullReporter) ProbeComplete(ProbeOutcome)           {}
func (NullReporter) Warning(string)                       {}
func (NullReporter) Error(ReporterError)                  {}
func (NullReporter) OperationComplete(string)             {}
func (NullReporter) BatchStarted(BatchStartInfo)          {}
func (NullReporter) FileProgress(FileProgressContext)     {}
func (NullReporter) BatchComplete(BatchSummary)           {}
func (NullReporter) Verbose(string)                       {}
