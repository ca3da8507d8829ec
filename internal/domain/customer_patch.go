package domain

import (
	"sort"
	"strings"
)

type patchField struct {
	required bool
	rule     string
	assign   func(p *CustomerPatch, v string)
}

// patchable поля клиента, допустимые в PATCH. abbonamenti меняется только через attach.
var patchable = map[string]patchField{
	"nome":        {required: true, assign: func(p *CustomerPatch, v string) { p.FirstName = &v }},
	"cognome":     {required: true, assign: func(p *CustomerPatch, v string) { p.LastName = &v }},
	"tel":         {required: true, assign: func(p *CustomerPatch, v string) { p.Phone = &v }},
	"email":       {required: true, rule: "email", assign: func(p *CustomerPatch, v string) { p.Email = &v }},
	"nr_casella":  {required: true, assign: func(p *CustomerPatch, v string) { p.Mailbox = &v }},
	"nr_tessera":  {assign: func(p *CustomerPatch, v string) { p.CardNumber = &v }},
	"pti_tessera": {assign: func(p *CustomerPatch, v string) { p.CardPoints = &v }},
}

// ParseCustomerPatch разбирает произвольное тело PATCH в CustomerPatch.
// Неизвестные, служебные и нестроковые поля отклоняются с ValidationErrors.
func ParseCustomerPatch(raw map[string]any) (CustomerPatch, error) {
	var (
		patch CustomerPatch
		errs  ValidationErrors
	)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, ok := patchable[key]
		if !ok {
			switch key {
			case "abbonamenti":
				errs.Add(key, "subscriptions can only be added through the attach operation")
			case "_id", "createdAt", "updatedAt", "__v":
				errs.Add(key, "field is read-only")
			default:
				errs.Add(key, "unknown field")
			}
			continue
		}

		value, ok := raw[key].(string)
		if !ok {
			errs.Add(key, "must be a string")
			continue
		}
		value = strings.TrimSpace(value)

		if field.required && value == "" {
			errs.Add(key, "must not be empty")
			continue
		}
		if field.rule != "" && value != "" {
			if err := structValidator.Var(value, field.rule); err != nil {
				errs.Add(key, "must be a valid "+field.rule)
				continue
			}
		}
		field.assign(&patch, value)
	}

	if errs.HasErrors() {
		return CustomerPatch{}, errs
	}
	if patch.IsEmpty() {
		errs.Add("body", "patch must contain at least one field")
		return CustomerPatch{}, errs
	}
	return patch, nil
}
