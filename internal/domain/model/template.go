package model

import "strings"

// TemplateVar names a value that may be substituted into a message template
// as {{name}}.
type TemplateVar string

const (
	VarEndDate      TemplateVar = "endDate"
	VarDaysLeft     TemplateVar = "daysLeft"
	VarTariffName   TemplateVar = "tariffName"
	VarUsername     TemplateVar = "username"
	VarPeriodMonths TemplateVar = "periodMonths"
)

var knownVars = map[TemplateVar]struct{}{
	VarEndDate:      {},
	VarDaysLeft:     {},
	VarTariffName:   {},
	VarUsername:     {},
	VarPeriodMonths: {},
}

func (v TemplateVar) Known() bool {
	_, ok := knownVars[v]
	return ok
}

func (v TemplateVar) Placeholder() string { return "{{" + string(v) + "}}" }

// TemplateVars holds the values available for one rendering.
type TemplateVars map[TemplateVar]string

// Render substitutes the given variables only; other placeholders are left as-is.
// A nil or empty allow-list substitutes every value present.
func (tv TemplateVars) Render(tmpl string, allowed []TemplateVar) string {
	if len(allowed) == 0 {
		allowed = make([]TemplateVar, 0, len(tv))
		for k := range tv {
			allowed = append(allowed, k)
		}
	}
	pairs := make([]string, 0, len(allowed)*2)
	for _, v := range allowed {
		val, ok := tv[v]
		if !ok {
			continue
		}
		pairs = append(pairs, v.Placeholder(), val)
	}
	if len(pairs) == 0 {
		return tmpl
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
