package healing

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"testmend/internal/logging"
)

// StrategyApplier is the default FixApplier: line-oriented source rewrites of
// generated test code, one strategy per fix type. Every strategy validates
// its precondition against the code and declines when it does not hold;
// declining costs the session a candidate, not a verify cycle.
type StrategyApplier struct {
	strategies map[FixType]strategyFunc
}

type strategyFunc func(code string, fctx FixContext) FixOutcome

// NewStrategyApplier creates the default applier with all safe strategies
// registered.
func NewStrategyApplier() *StrategyApplier {
	return &StrategyApplier{
		strategies: map[FixType]strategyFunc{
			FixMissingAwait:      applyMissingAwait,
			FixNavigationWait:    applyNavigationWait,
			FixTimeoutIncrease:   applyTimeoutIncrease,
			FixWebFirstAssertion: applyWebFirstAssertion,
			FixAddExact:          applyAddExact,
			FixSelectorRefine:    applySelectorRefine,
		},
	}
}

// ApplyFix implements FixApplier. Unknown fix types decline rather than
// erroring so a future rule-table entry cannot crash the loop.
func (a *StrategyApplier) ApplyFix(ctx context.Context, fix FixType, code string, fctx FixContext) (FixOutcome, error) {
	if err := ctx.Err(); err != nil {
		return FixOutcome{}, err
	}

	strat, ok := a.strategies[fix]
	if !ok {
		logging.HealingDebug("No strategy registered for fix type %s", fix)
		return FixOutcome{Description: fmt.Sprintf("no strategy for fix type %q", fix)}, nil
	}

	outcome := strat(code, fctx)
	if outcome.Applied {
		logging.Healing("Applied fix %s: %s", fix, outcome.Description)
	} else {
		logging.HealingDebug("Fix %s declined: %s", fix, outcome.Description)
	}
	return outcome, nil
}

var actionCallPattern = regexp.MustCompile(
	`^(\s*)(page\.(?:click|fill|goto|check|uncheck|hover|press|selectOption|waitForSelector)\(|locator\(.*\)\.(?:click|fill|check|hover)\()`)

// applyMissingAwait prefixes un-awaited page/locator action calls with await.
func applyMissingAwait(code string, _ FixContext) FixOutcome {
	lines := strings.Split(code, "\n")
	changed := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "await ") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if m := actionCallPattern.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + "await " + strings.TrimPrefix(line, m[1])
			changed++
		}
	}
	if changed == 0 {
		return FixOutcome{Description: "no un-awaited action calls found"}
	}
	return FixOutcome{
		Applied:     true,
		Code:        strings.Join(lines, "\n"),
		Description: fmt.Sprintf("added await to %d action call(s)", changed),
	}
}

var gotoPattern = regexp.MustCompile(`^(\s*)(await\s+)?page\.goto\(`)

// applyNavigationWait inserts a load-state wait after goto calls that are not
// already followed by one.
func applyNavigationWait(code string, _ FixContext) FixOutcome {
	lines := strings.Split(code, "\n")
	var out []string
	changed := 0
	for i, line := range lines {
		out = append(out, line)
		m := gotoPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if i+1 < len(lines) && strings.Contains(lines[i+1], "waitForLoadState") {
			continue
		}
		out = append(out, m[1]+`await page.waitForLoadState('networkidle');`)
		changed++
	}
	if changed == 0 {
		return FixOutcome{Description: "no navigation without a following load-state wait"}
	}
	return FixOutcome{
		Applied:     true,
		Code:        strings.Join(out, "\n"),
		Description: fmt.Sprintf("added load-state wait after %d navigation(s)", changed),
	}
}

var timeoutPattern = regexp.MustCompile(`timeout:\s*(\d+)`)

// timeout doubling is capped so repeated attempts cannot grow unbounded.
const maxTimeoutMs = 60000

// applyTimeoutIncrease doubles explicit step timeouts.
func applyTimeoutIncrease(code string, _ FixContext) FixOutcome {
	changed := 0
	result := timeoutPattern.ReplaceAllStringFunc(code, func(m string) string {
		sub := timeoutPattern.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			return m
		}
		doubled := n * 2
		if doubled > maxTimeoutMs {
			doubled = maxTimeoutMs
		}
		if doubled == n {
			return m
		}
		changed++
		return fmt.Sprintf("timeout: %d", doubled)
	})
	if changed == 0 {
		return FixOutcome{Description: "no explicit timeouts to increase"}
	}
	return FixOutcome{
		Applied:     true,
		Code:        result,
		Description: fmt.Sprintf("doubled %d explicit timeout(s)", changed),
	}
}

var isVisibleAssertPattern = regexp.MustCompile(
	`expect\(await\s+(page\.[A-Za-z]+\([^)]*\)|[A-Za-z_][\w.]*)\.isVisible\(\)\)\.toBe\(true\)`)

// applyWebFirstAssertion rewrites polling-hostile assertions into web-first
// ones that retry internally.
func applyWebFirstAssertion(code string, _ FixContext) FixOutcome {
	changed := 0
	result := isVisibleAssertPattern.ReplaceAllStringFunc(code, func(m string) string {
		sub := isVisibleAssertPattern.FindStringSubmatch(m)
		changed++
		return fmt.Sprintf("await expect(%s).toBeVisible()", sub[1])
	})
	if changed == 0 {
		return FixOutcome{Description: "no convertible assertions found"}
	}
	return FixOutcome{
		Applied:     true,
		Code:        result,
		Description: fmt.Sprintf("converted %d assertion(s) to web-first form", changed),
	}
}

var getByTextPattern = regexp.MustCompile(`getByText\((['"])((?:[^'"\\]|\\.)*)(['"])\)`)

// applyAddExact turns substring text locators into exact matches, which
// resolves strict-mode violations from ambiguous text.
func applyAddExact(code string, _ FixContext) FixOutcome {
	changed := 0
	result := getByTextPattern.ReplaceAllStringFunc(code, func(m string) string {
		changed++
		return strings.TrimSuffix(m, ")") + ", { exact: true })"
	})
	if changed == 0 {
		return FixOutcome{Description: "no text locators to make exact"}
	}
	return FixOutcome{
		Applied:     true,
		Code:        result,
		Description: fmt.Sprintf("made %d text locator(s) exact", changed),
	}
}

var (
	quotedSelectorPattern = regexp.MustCompile(`['"]([^'"]+)['"]`)
	nthChildPattern       = regexp.MustCompile(`\s*>?\s*:nth-child\(\d+\)`)
)

// applySelectorRefine strips brittle positional parts from the selector that
// the failure report names. It only acts when the failing selector actually
// appears in the code and has something refinable.
func applySelectorRefine(code string, fctx FixContext) FixOutcome {
	failing := extractFailingSelector(fctx)
	if failing == "" {
		return FixOutcome{Description: "failure report names no selector"}
	}
	if !strings.Contains(code, failing) {
		return FixOutcome{Description: fmt.Sprintf("failing selector %q not present in code", failing)}
	}

	refined := nthChildPattern.ReplaceAllString(failing, "")
	refined = strings.TrimSpace(refined)
	if refined == failing || refined == "" {
		return FixOutcome{Description: fmt.Sprintf("selector %q has no refinable parts", failing)}
	}

	return FixOutcome{
		Applied:     true,
		Code:        strings.ReplaceAll(code, failing, refined),
		Description: fmt.Sprintf("refined selector %q -> %q", failing, refined),
	}
}

// extractFailingSelector pulls the first quoted selector-looking token from
// the failure message.
func extractFailingSelector(fctx FixContext) string {
	for _, m := range quotedSelectorPattern.FindAllStringSubmatch(fctx.ErrorMessage, -1) {
		candidate := m[1]
		if strings.ContainsAny(candidate, ".#[>:") || strings.Contains(candidate, "=") {
			return candidate
		}
	}
	return ""
}
