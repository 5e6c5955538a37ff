package logging

import (
	"testing"
)

func TestNewMessageTemplates(t *testing.T) {
	mt := NewMessageTemplates()
	if mt == nil {
		t.Error("NewMessageTemplates should return a non-nil instance")
	}
}

func TestMessageTemplates_FormatPipelineMessage(t *testing.T) {
	mt := NewMessageTemplates()

	tests := []struct {
		name     string
		template string
		phase    string
		attrs    map[string]interface{}
		expected string
	}{
		{
			name:     "basic phase message",
			template: RuleCompileStartTemplate,
			phase:    "compile",
			attrs:    nil,
			expected: "Compiling match/action rules phase=compile",
		},
		{
			name:     "pass-one message",
			template: PassOneStartTemplate,
			phase:    "disasm-1",
			attrs:    map[string]interface{}{"duration": "5s"},
			expected: "Starting first disassembly pass phase=disasm-1",
		},
		{
			name:     "empty phase",
			template: RuleCompileFailedTemplate,
			phase:    "",
			attrs:    nil,
			expected: "Rule compilation failed phase=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mt.FormatPipelineMessage(tt.template, tt.phase, tt.attrs)
			if result != tt.expected {
				t.Errorf("FormatPipelineMessage() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestMessageTemplates_FormatSecurityMessage(t *testing.T) {
	mt := NewMessageTemplates()

	tests := []struct {
		name      string
		template  string
		operation string
		severity  string
		expected  string
	}{
		{
			name:      "security check message",
			template:  SecurityCheckTemplate,
			operation: "rule_validation",
			severity:  "high",
			expected:  "Performing rule validation operation=rule_validation severity=high",
		},
		{
			name:      "security denied message",
			template:  SecurityDeniedTemplate,
			operation: "csv_lookup",
			severity:  "critical",
			expected:  "Rule validation rejected input operation=csv_lookup severity=critical",
		},
		{
			name:      "security warning message",
			template:  SecurityWarningTemplate,
			operation: "undefined_symbol",
			severity:  "medium",
			expected:  "Rule validation warning operation=undefined_symbol severity=medium",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mt.FormatSecurityMessage(tt.template, tt.operation, tt.severity)
			if result != tt.expected {
				t.Errorf("FormatSecurityMessage() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestMessageTemplates_FormatSystemMessage(t *testing.T) {
	mt := NewMessageTemplates()

	tests := []struct {
		name      string
		template  string
		component string
		expected  string
	}{
		{
			name:      "system start message",
			template:  SystemStartTemplate,
			component: "pipeline",
			expected:  "Pipeline initialization started component=pipeline",
		},
		{
			name:      "system ready message",
			template:  SystemReadyTemplate,
			component: "emitter",
			expected:  "Pipeline ready to emit component=emitter",
		},
		{
			name:      "system shutdown message",
			template:  SystemShutdownTemplate,
			component: "logger",
			expected:  "Pipeline shutdown initiated component=logger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mt.FormatSystemMessage(tt.template, tt.component)
			if result != tt.expected {
				t.Errorf("FormatSystemMessage() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestMessageTemplateConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"RuleCompileStartTemplate", RuleCompileStartTemplate, "Compiling match/action rules"},
		{"RuleCompileDoneTemplate", RuleCompileDoneTemplate, "Rule compilation completed"},
		{"RuleCompileFailedTemplate", RuleCompileFailedTemplate, "Rule compilation failed"},
		{"PassOneStartTemplate", PassOneStartTemplate, "Starting first disassembly pass"},
		{"PassTwoStartTemplate", PassTwoStartTemplate, "Starting second disassembly pass (plugin notification requested)"},
		{"PassDoneTemplate", PassDoneTemplate, "Disassembly pass completed"},
		{"EmissionStartTemplate", EmissionStartTemplate, "Starting reverse-order instruction/patch emission"},
		{"EmissionDoneTemplate", EmissionDoneTemplate, "Emission completed"},
		{"SecurityCheckTemplate", SecurityCheckTemplate, "Performing rule validation"},
		{"SecurityDeniedTemplate", SecurityDeniedTemplate, "Rule validation rejected input"},
		{"SecurityWarningTemplate", SecurityWarningTemplate, "Rule validation warning"},
		{"SystemStartTemplate", SystemStartTemplate, "Pipeline initialization started"},
		{"SystemReadyTemplate", SystemReadyTemplate, "Pipeline ready to emit"},
		{"SystemShutdownTemplate", SystemShutdownTemplate, "Pipeline shutdown initiated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("%s = %q, expected %q", tt.name, tt.constant, tt.expected)
			}
		})
	}
}

func TestLogFileHintTemplates(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"LogFileHintPrefix", LogFileHintPrefix, "Check log file around line"},
		{"LogFileHintSuffix", LogFileHintSuffix, "for more details"},
		{"LogFileHintFullFormat", LogFileHintFullFormat, "Check log file around line %d for more details"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("%s = %q, expected %q", tt.name, tt.constant, tt.expected)
			}
		})
	}
}
