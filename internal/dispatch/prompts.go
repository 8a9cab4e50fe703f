package dispatch

import (
	"fmt"
	"strings"

	"plcaudit/internal/shard"
)

// Finding types the analysis prompts ask for.
const (
	TypeMissingAlarm  = "missing_alarm"
	TypeExistingAlarm = "existing_alarm"
	TypeSafetyIssue   = "safety_issue"
	TypeLogicError    = "logic_error"
)

const alarmSystemPrompt = `You are a senior PLC engineer and industrial automation expert who audits alarm systems in PLC code.

Your tasks:
1. Identify existing alarm configuration and logic
2. Find missing critical alarms
3. Assess whether the alarm coverage is reasonable and complete
4. Give concrete improvement recommendations

Focus on:
- Safety-related alarms (emergency stop, safety doors, light curtains)
- Process alarms (temperature, pressure, speed limit violations)
- Equipment status alarms (motor faults, sensor faults)
- System-level alarms (communication faults, I/O faults)

Apply industrial safety standards (IEC 61508, ISO 13849) and alarm
management practice (ISA-18.2) when judging coverage.`

const safetySystemPrompt = `You are a functional safety expert who audits the safety functions of PLC code.

Your tasks:
1. Identify safety-related logic and functions
2. Assess the completeness of each safety function
3. Check conformance with safety standard requirements
4. Find latent safety hazards

Focus on:
- Safety input and output handling
- Safety interlock logic
- Fault detection and diagnostics
- Maintaining the safe state
- Redundancy and diversity`

const logicSystemPrompt = `You are a PLC program logic expert who audits program correctness.

Your tasks:
1. Check the correctness of the program logic
2. Identify latent logic errors
3. Assess the robustness of the program
4. Suggest improvements

Focus on:
- Completeness of conditional branches
- State machine logic
- Timing and sequencing
- Exception handling
- Consistent variable usage`

const alarmExamples = `Example 1 - missing temperature alarm:
Input: a temperature sensor is read but no over-temperature alarm exists.
Output:
{
    "type": "missing_alarm",
    "severity": "high",
    "location": "temperature monitoring logic",
    "description": "Sensor TT_001 is read but there is no over-temperature alarm",
    "recommendation": "Add a high temperature alarm (>80 C) and a high-high alarm (>95 C)",
    "confidence": 0.9
}

Example 2 - existing pressure alarm:
Input: the pressure loop contains high-pressure alarm logic.
Output:
{
    "type": "existing_alarm",
    "severity": "medium",
    "location": "pressure control loop",
    "description": "Complete pressure alarm configuration found, including high and low alarms",
    "recommendation": "Configuration is sound; verify the alarm setpoints periodically",
    "confidence": 0.95
}`

const responseFormat = `Reply with exactly one JSON object in this shape and nothing else:
{
    "findings": [
        {
            "type": "missing_alarm|existing_alarm|safety_issue|logic_error",
            "severity": "critical|high|medium|low",
            "location": "where in the code",
            "description": "what was found",
            "recommendation": "what to change",
            "confidence": 0.0
        }
    ]
}
An empty findings array is a valid answer.`

// SystemPrompt returns the analyst role for an analysis type.
func SystemPrompt(analysisType string) string {
	switch analysisType {
	case "alarm":
		return alarmSystemPrompt
	case "safety":
		return safetySystemPrompt
	case "logic":
		return logicSystemPrompt
	}
	return "You are a PLC program analysis expert."
}

// BuildUserPrompt assembles the per-shard request body: context
// summaries, few-shot examples, the shard source, and the required
// response format.
func BuildUserPrompt(s *shard.Shard, analysisType string) string {
	var b strings.Builder

	b.WriteString("## Context\n")
	if len(s.ContextBlocks) == 0 && len(s.ExternalRefs) == 0 {
		b.WriteString("No external dependencies.\n")
	}
	for _, cb := range s.ContextBlocks {
		fmt.Fprintf(&b, "- %s (%s): %s\n", cb.Name, cb.Kind, firstLine(cb.Signature))
	}
	if len(s.ExternalRefs) > 0 {
		fmt.Fprintf(&b, "- Unresolved external references: %s\n", strings.Join(s.ExternalRefs, ", "))
	}

	if analysisType == "alarm" {
		b.WriteString("\n## Examples\n")
		b.WriteString(alarmExamples)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n## PLC code under analysis (shard %s, lines %d-%d)\n",
		s.ID, s.Range.Start, s.Range.End)
	if s.OverlapLines > 0 {
		fmt.Fprintf(&b, "The first %d lines repeat the end of the previous shard for continuity.\n", s.OverlapLines)
	}
	b.WriteString("```\n")
	b.WriteString(s.Content)
	b.WriteString("\n```\n\n")

	b.WriteString("## Required output\n")
	b.WriteString(responseFormat)
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
