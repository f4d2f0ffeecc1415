package build

import (
	"regexp"
	"strings"

	"github.com/wippyai/wasm-scripthost/compiler"
)

var directiveRe = regexp.MustCompile(`#(Local|System):([^\r\n]*)`)

// directive is one reference name found in a fragment.
type directive struct {
	name string
	kind compiler.ReferenceKind
}

// extractDirectives returns the fragment with every directive removed and
// the names the directives list, in order of appearance.
func extractDirectives(fragment string) (string, []directive) {
	if !directiveRe.MatchString(fragment) {
		return fragment, nil
	}
	var out []directive
	for _, m := range directiveRe.FindAllStringSubmatch(fragment, -1) {
		kind := compiler.KindSystem
		if m[1] == "Local" {
			kind = compiler.KindLocal
		}
		for _, name := range strings.Split(m[2], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			out = append(out, directive{name: name, kind: kind})
		}
	}
	return directiveRe.ReplaceAllString(fragment, ""), out
}
