package analyze

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
)

var (
	errNoJSON = errors.New("response contains no JSON object")
	errNoRole = errors.New("response JSON has no role")
)

// roleSynonyms maps role names models commonly return onto the fixed roles.
var roleSynonyms = map[string]core.InsightRole{
	"title":        core.RoleTitle,
	"heading":      core.RoleTitle,
	"header":       core.RoleTitle,
	"introduction": core.RoleTitle,
	"intro":        core.RoleTitle,
	"step":         core.RoleStep,
	"steps":        core.RoleStep,
	"instruction":  core.RoleStep,
	"procedure":    core.RoleStep,
	"task":         core.RoleStep,
	"concept":      core.RoleConcept,
	"explanation":  core.RoleConcept,
	"definition":   core.RoleConcept,
	"background":   core.RoleConcept,
	"theory":       core.RoleConcept,
	"code":         core.RoleCode,
	"code_example": core.RoleCode,
	"code_snippet": core.RoleCode,
	"snippet":      core.RoleCode,
	"command":      core.RoleCode,
	"other":        core.RoleOther,
}

// NormalizeRole maps a model-provided role onto a fixed InsightRole.
// Unknown roles become other.
func NormalizeRole(s string) core.InsightRole {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if r, ok := roleSynonyms[key]; ok {
		return r
	}
	return core.RoleOther
}

// ParseResponse extracts the role and summary from a classify response.
// Code fences, SDK text wrappers and prose around the JSON are tolerated.
func ParseResponse(resp string) (core.InsightRole, string, error) {
	obj, ok := llm.ExtractJSON(resp)
	if !ok {
		return "", "", errNoJSON
	}
	role := gjson.Get(obj, "role")
	if !role.Exists() || strings.TrimSpace(role.String()) == "" {
		return "", "", errNoRole
	}
	return NormalizeRole(role.String()), strings.TrimSpace(gjson.Get(obj, "summary").String()), nil
}
