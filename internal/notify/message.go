// Package notify renders the operator notification for an enriched alert.
// Transports live in subpackages and receive the rendered subject and body.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/classify"
)

// DetailsHeader separates the human-readable part of a body from the alert JSON.
const DetailsHeader = "\n\nFull Alert Details:\n"

// label is the subject tag for each action; anything absent is "Action Unknown".
var label = map[classify.ActionType]string{
	classify.ActionAIHandled:      "AI Handled",
	classify.ActionHumanRequired:  "Human Required",
	classify.ActionFalsePositive:  "False Positive",
	classify.ActionNonAddressable: "Non-Addressable",
}

// Label returns the subject tag for an action type.
func Label(a classify.ActionType) string {
	if l, ok := label[a]; ok {
		return l
	}
	return "Action Unknown"
}

// Subject renders the notification subject line.
func Subject(al *alert.Alert, c classify.Classification) string {
	return fmt.Sprintf("[UASO Alert - %s] %s - %s", Label(c.ActionType), al.Severity, al.Source)
}

// Body renders the notification text: the summary, action guidance, and the
// full alert as indented JSON.
func Body(al *alert.Alert, c classify.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert Summary: %s\n\n", c.Summary)

	switch c.ActionType {
	case classify.ActionAIHandled:
		fmt.Fprintf(&b, "AI Agent Action: %s\n", c.AIHandlingMessage)
		b.WriteString("This threat has been automatically addressed by the AI agent. No human intervention needed.")
	case classify.ActionHumanRequired:
		fmt.Fprintf(&b, "Human Guidance: %s\n", c.HumanGuidanceMessage)
		b.WriteString("Immediate human intervention is required for this threat. Please follow the guidance above.")
	case classify.ActionFalsePositive:
		b.WriteString("This alert has been classified as a false positive and requires no action. No human intervention needed.")
	case classify.ActionNonAddressable:
		b.WriteString("This alert is a real threat but is currently outside the scope of automated handling or requires external action. Manual review is recommended.")
	default:
		b.WriteString("The AI could not confidently determine the appropriate action for this alert. Manual review is highly recommended.")
	}

	b.WriteString(DetailsHeader)
	details, _ := json.MarshalIndent(al, "", "  ")
	b.Write(details)
	return b.String()
}
