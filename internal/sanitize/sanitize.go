// Package sanitize strips dangerous constructs from prompts and generated code
// before they leave the process or are stored.
//
// The code sanitizer is textual and deliberately conservative: it matches
// denylisted tokens at statement and call boundaries with regular expressions,
// not a parser, and may over-strip when a token appears in an unrelated
// context. That trade-off is accepted; it is a safety net, not an analyzer.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// moduleDenylist holds module names whose import statements are removed from
// generated code and reported as findings.
var moduleDenylist = []string{
	"os",
	"sys",
	"subprocess",
	"shutil",
	"socket",
	"ctypes",
	"pickle",
}

// functionDenylist holds call targets that are stripped from generated code.
var functionDenylist = []string{
	"eval",
	"exec",
	"execfile",
	"compile",
	"__import__",
	"system",
	"popen",
	"spawn",
}

// shellCallPattern matches explicit shell-invocation calls such as
// os.system("...") or subprocess.run("...", shell=True).
var shellCallPattern = regexp.MustCompile(`(?i)\b(?:os|subprocess)\s*\.\s*\w+\s*\([^)]*\)`)

var (
	importPatterns   map[string]*regexp.Regexp
	functionPatterns map[string]*regexp.Regexp
	promptReplacer   = strings.NewReplacer("`", "", "$", "", "\\", "")
)

func init() {
	importPatterns = make(map[string]*regexp.Regexp, len(moduleDenylist))
	for _, mod := range moduleDenylist {
		// Matches whole import statements: "import os", "import os.path as p",
		// "from os import path".
		importPatterns[mod] = regexp.MustCompile(
			`(?im)^[ \t]*(?:import[ \t]+` + regexp.QuoteMeta(mod) + `\b[^\n]*|from[ \t]+` + regexp.QuoteMeta(mod) + `\b[^\n]*)$`)
	}
	functionPatterns = make(map[string]*regexp.Regexp, len(functionDenylist))
	for _, fn := range functionDenylist {
		functionPatterns[fn] = regexp.MustCompile(
			`(?i)\b` + regexp.QuoteMeta(fn) + `\s*\([^)]*\)`)
	}
}

// Prompt neutralizes characters usable for injection in a user prompt and
// trims surrounding whitespace. It never fails.
func Prompt(text string) string {
	return strings.TrimSpace(promptReplacer.Replace(text))
}

// Code removes import statements for denylisted modules, calls to denylisted
// functions, and explicit shell-invocation call patterns from generated code.
func Code(code string) string {
	for _, mod := range moduleDenylist {
		code = importPatterns[mod].ReplaceAllString(code, "")
	}
	code = shellCallPattern.ReplaceAllString(code, "")
	for _, fn := range functionDenylist {
		code = functionPatterns[fn].ReplaceAllString(code, "")
	}
	return collapseBlankLines(code)
}

// Finding describes one denylist hit in a piece of code.
type Finding struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// CheckCode reports every denylist hit in code without mutating it. Findings
// are informational; enforcement is Code's job.
func CheckCode(code string) []Finding {
	var findings []Finding
	for _, mod := range moduleDenylist {
		if importPatterns[mod].MatchString(code) {
			findings = append(findings, Finding{
				Token:   mod,
				Message: fmt.Sprintf("code imports denylisted module %q", mod),
			})
		}
	}
	for _, fn := range functionDenylist {
		if functionPatterns[fn].MatchString(code) {
			findings = append(findings, Finding{
				Token:   fn,
				Message: fmt.Sprintf("code calls denylisted function %q", fn),
			})
		}
	}
	if shellCallPattern.MatchString(code) {
		findings = append(findings, Finding{
			Token:   "shell",
			Message: "code contains an explicit shell invocation",
		})
	}
	return findings
}

// collapseBlankLines squashes runs of blank lines left behind by stripped
// statements.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
