package logging

// MessageTemplates provides common message templates and formatting utilities
// for consistent log message formatting across the rewriter pipeline.
type MessageTemplates struct{}

// NewMessageTemplates creates a new MessageTemplates instance.
func NewMessageTemplates() *MessageTemplates {
	return &MessageTemplates{}
}

// Common message templates for different pipeline phases.
const (
	// Rule compilation messages
	RuleCompileStartTemplate  = "Compiling match/action rules"
	RuleCompileDoneTemplate   = "Rule compilation completed"
	RuleCompileFailedTemplate = "Rule compilation failed"

	// Disassembly pass messages
	PassOneStartTemplate = "Starting first disassembly pass"
	PassTwoStartTemplate = "Starting second disassembly pass (plugin notification requested)"
	PassDoneTemplate     = "Disassembly pass completed"

	// Emission messages
	EmissionStartTemplate = "Starting reverse-order instruction/patch emission"
	EmissionDoneTemplate  = "Emission completed"

	// Security/validation messages
	SecurityCheckTemplate   = "Performing rule validation"
	SecurityDeniedTemplate  = "Rule validation rejected input"
	SecurityWarningTemplate = "Rule validation warning"

	// System messages
	SystemStartTemplate    = "Pipeline initialization started"
	SystemReadyTemplate    = "Pipeline ready to emit"
	SystemShutdownTemplate = "Pipeline shutdown initiated"
)

// LogFileHintTemplates provides templates for log file hints.
const (
	LogFileHintPrefix     = "Check log file around line"
	LogFileHintSuffix     = "for more details"
	LogFileHintFullFormat = LogFileHintPrefix + " %d " + LogFileHintSuffix
)

// FormatPipelineMessage formats phase-related messages with consistent structure.
func (t *MessageTemplates) FormatPipelineMessage(template, phase string, _ map[string]any) string {
	return template + " phase=" + phase
}

// FormatSecurityMessage formats validation-related messages with appropriate severity indicators.
func (t *MessageTemplates) FormatSecurityMessage(template, operation string, severity string) string {
	return template + " operation=" + operation + " severity=" + severity
}

// FormatSystemMessage formats system-level messages with context.
func (t *MessageTemplates) FormatSystemMessage(template, component string) string {
	return template + " component=" + component
}
