package pipeline

import "regexp"

// These patterns drive the fixed, line-oriented textual repairs
// applied before every LLM repair call (§4.6's "self-healing between
// attempts" list), in order. No general HCL parser is used — these are
// narrow pattern substitutions, same approach as the original
// implementation's equivalent string replacements.
var (
	reDestinationSGID = regexp.MustCompile(`destination_security_group_id`)
	reInlineTags       = regexp.MustCompile(`(?m)^\s*tags\s*=\s*\{[^}]*\}\s*$`)
	reInlineSGBlock    = regexp.MustCompile(`(?ms)^\s*(ingress|egress)\s*\{.*?\n\s*\}\s*$`)
	reSGName           = regexp.MustCompile(`name\s*=\s*"sg-([^"]+)"`)
)

// ApplyDeterministicFixers runs the four fixed repairs over hcl:
//  1. destination_security_group_id -> source_security_group_id in
//     egress rules (a common LLM confusion of direction).
//  2. drop every single-line `tags = {...}` attribute, whatever the
//     resource type; resources that support tagging lose theirs too.
//  3. strip inline ingress/egress blocks from aws_security_group
//     resource bodies (the static-policy check in Validate forbids
//     these; rule resources are required instead). A body ends at the
//     first line starting with `}`; blocks elsewhere are left alone.
//  4. normalize `name = "sg-X"` to `name = "X-sg"`.
func ApplyDeterministicFixers(hcl string) string {
	hcl = reDestinationSGID.ReplaceAllString(hcl, "source_security_group_id")
	hcl = reInlineTags.ReplaceAllString(hcl, "")
	sgResource := regexp.MustCompile(`(?ms)^resource\s+"aws_security_group"\s+"[^"]*"\s*\{.*?^\}`)
	hcl = sgResource.ReplaceAllStringFunc(hcl, func(body string) string {
		return reInlineSGBlock.ReplaceAllString(body, "")
	})
	hcl = reSGName.ReplaceAllString(hcl, `name = "$1-sg"`)
	return hcl
}

// HasInlineSecurityGroupRules reports whether hcl contains an inline
// ingress/egress block inside a resource body — the static-policy
// violation the Validate stage checks for in addition to the subprocess
// result (§4.6 Validate).
func HasInlineSecurityGroupRules(hcl string) bool {
	return reInlineSGBlock.MatchString(hcl)
}
