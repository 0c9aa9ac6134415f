package deliver

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Replacer applies deterministic text substitutions to final transcripts
// before delivery. Rules come from a plain file, one per line:
//
//	literal -> replacement
//	re:^pattern$ -> replacement
//
// Blank lines and #-comments are skipped. Rules re-run until a pass changes
// nothing, bounded by the iteration limit.
type Replacer struct {
	rules     []rule
	loopLimit int
}

type rule struct {
	literal string
	pattern *regexp.Regexp
	replace string
}

// LoadReplacer reads the rules file. A missing or empty path yields a
// pass-through replacer.
func LoadReplacer(path string, loopLimit int) (*Replacer, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	r := &Replacer{loopLimit: loopLimit}
	if strings.TrimSpace(path) == "" {
		return r, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}

	for index, raw := range strings.Split(string(contents), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := parseRule(line)
		if err != nil {
			return nil, fmt.Errorf("rules file %q line %d: %w", path, index+1, err)
		}
		r.rules = append(r.rules, parsed)
	}
	return r, nil
}

func parseRule(line string) (rule, error) {
	lhs, rhs, ok := strings.Cut(line, "->")
	if !ok {
		return rule{}, errors.New("missing \"->\" separator")
	}
	lhs = strings.TrimSpace(lhs)
	rhs = strings.TrimSpace(rhs)
	if lhs == "" {
		return rule{}, errors.New("empty match side")
	}

	if pattern, found := strings.CutPrefix(lhs, "re:"); found {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return rule{}, fmt.Errorf("bad pattern: %w", err)
		}
		return rule{pattern: compiled, replace: rhs}, nil
	}
	return rule{literal: lhs, replace: rhs}, nil
}

// Apply transforms text deterministically.
func (r *Replacer) Apply(text string) string {
	if len(r.rules) == 0 {
		return text
	}

	result := text
	for i := 0; i < r.loopLimit; i++ {
		changed := false
		for _, rl := range r.rules {
			var next string
			if rl.pattern != nil {
				next = rl.pattern.ReplaceAllString(result, rl.replace)
			} else {
				next = strings.ReplaceAll(result, rl.literal, rl.replace)
			}
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}
