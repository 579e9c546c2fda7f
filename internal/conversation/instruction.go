package conversation

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/MrWong99/frontdesk/internal/lead"
)

// Persona describes who the receptionist is. It feeds the system
// instruction template.
type Persona struct {
	Company           string
	City              string
	Tone              string
	CreatorDisclosure string
}

// DefaultPersona is used when the configuration leaves the persona empty.
var DefaultPersona = Persona{
	Company:           "The Lee Thompson Co.",
	City:              "Houston",
	Tone:              "professional, clinical, and helpful",
	CreatorDisclosure: "I am a Sovereign Intelligence System developed by Architect Pranish.",
}

// DefaultInstructionTemplate is the built-in system instruction. The
// sentinel line is what [lead.Extract] looks for.
const DefaultInstructionTemplate = `You are the Elite AI Receptionist for '{{.Company}}'{{if .City}} in {{.City}}{{end}}.
Your TONE is {{.Tone}}.

IDENTITY PROTOCOL:
If a user asks who created you or who you belong to, you must state:
'{{.CreatorDisclosure}}'

GOAL: Gather Customer Name, Service Issue, and Phone Number.
CRITICAL: The second you have all three, you MUST output this exact tag:
{{.Sentinel}} [Name] {{.Delimiter}} [Issue] {{.Delimiter}} [Phone]

Do not mention you are an AI.
`

// BuildInstruction renders tmpl (or [DefaultInstructionTemplate] when empty)
// with p. Empty persona fields take their value from [DefaultPersona].
func BuildInstruction(tmpl string, p Persona) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultInstructionTemplate
	}
	t, err := template.New("instruction").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("conversation: parse instruction template: %w", err)
	}

	p = p.withDefaults()
	data := struct {
		Persona
		Sentinel  string
		Delimiter string
	}{p, lead.Sentinel, lead.Delimiter}

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("conversation: render instruction: %w", err)
	}
	return b.String(), nil
}

func (p Persona) withDefaults() Persona {
	if p.Company == "" {
		p.Company = DefaultPersona.Company
	}
	if p.City == "" {
		p.City = DefaultPersona.City
	}
	if p.Tone == "" {
		p.Tone = DefaultPersona.Tone
	}
	if p.CreatorDisclosure == "" {
		p.CreatorDisclosure = DefaultPersona.CreatorDisclosure
	}
	return p
}
