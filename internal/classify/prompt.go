package classify

import "strings"

const messagePlaceholder = "{{ALERT_MESSAGE}}"

const promptTemplate = `
You are an expert security analyst assistant. Your task is to analyze security alerts, summarize them, classify their nature (real threat vs. false positive), determine if they are addressable by an AI agent or require human intervention, and suggest appropriate actions.

Analyze the following security alert:
` + messagePlaceholder + `

Provide your analysis in a JSON format with the following keys. Ensure the output is *only* the JSON object, without any additional text or markdown formatting (e.g., ` + "```json or ```" + `).

- "summary": A one-sentence summary of the alert.
- "is_real_threat": boolean (true if it's a real, addressable threat, false otherwise).
- "action_type": string ("AI_HANDLED", "HUMAN_REQUIRED", "FALSE_POSITIVE", "NON_ADDRESSABLE", "UNKNOWN").
    - "AI_HANDLED": The alert is a real threat and can be fully resolved by an AI agent.
    - "HUMAN_REQUIRED": The alert is a real threat but needs human review or action.
    - "FALSE_POSITIVE": The alert is not a real threat and can be ignored.
    - "NON_ADDRESSABLE": The alert is a real threat but is outside the scope of current automation or requires external action (e.g., vendor patch).
    - "UNKNOWN": If the AI cannot confidently classify or suggest an action.
- "ai_handling_message": string (If action_type is "AI_HANDLED", describe how an AI agent would handle it. Otherwise, an empty string).
- "human_guidance_message": string (If action_type is "HUMAN_REQUIRED", provide clear, actionable guidance for a human analyst. Otherwise, an empty string).

Example for a real threat handled by AI:
{
    "summary": "Multiple login failures detected for a known bot account, which was automatically blocked.",
    "is_real_threat": true,
    "action_type": "AI_HANDLED",
    "ai_handling_message": "The AI agent automatically blocked the malicious IP address and locked the compromised account. No further action is required.",
    "human_guidance_message": ""
}

Example for a real threat requiring human:
{
    "summary": "Malware detected on a critical production server requiring forensic analysis.",
    "is_real_threat": true,
    "action_type": "HUMAN_REQUIRED",
    "ai_handling_message": "",
    "human_guidance_message": "Isolate the server immediately, initiate forensic imaging, and contact the incident response team for further investigation. Do not reboot."
}

Example for a false positive:
{
    "summary": "Routine IT vulnerability scan detected as a port scan, confirmed as expected activity.",
    "is_real_threat": false,
    "action_type": "FALSE_POSITIVE",
    "ai_handling_message": "",
    "human_guidance_message": ""
}
`

// BuildPrompt renders the analysis prompt for one alert message. The
// message is inserted verbatim, including any braces it contains.
func BuildPrompt(message string) string {
	return strings.Replace(promptTemplate, messagePlaceholder, message, 1)
}
