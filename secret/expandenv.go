package secret

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// ExpandEnvStrict expands $VAR and ${VAR} from the process environment.
// Unlike os.ExpandEnv it fails with ErrMissingEnv when a braced variable is
// unset, listing every missing name. "$$" yields a literal "$".
func ExpandEnvStrict(s string) (string, error) {
	return ExpandStrict(s, nil)
}

// ExpandStrict is ExpandEnvStrict over lookup. A nil lookup reads the
// process environment.
func ExpandStrict(s string, lookup func(string) (string, bool)) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if !strings.Contains(s, "$") {
		return s, nil
	}

	// Each chunk is followed by an escaped "$", dropped again after the
	// last one.
	var missing []string
	var b strings.Builder
	for chunk := range strings.SplitSeq(s, "$$") {
		expanded := os.Expand(chunk, func(name string) string {
			v, ok := lookup(name)
			if !ok && braced(chunk, name) && !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			return v
		})
		b.WriteString(expanded)
		b.WriteByte('$')
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	out := b.String()
	return out[:len(out)-1], nil
}

func braced(s, name string) bool {
	return strings.Contains(s, "${"+name+"}")
}
