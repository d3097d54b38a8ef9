package healing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, fix FixType, code string, fctx FixContext) FixOutcome {
	t.Helper()
	outcome, err := NewStrategyApplier().ApplyFix(context.Background(), fix, code, fctx)
	require.NoError(t, err)
	return outcome
}

func TestMissingAwaitAddsAwait(t *testing.T) {
	code := "  page.click('#submit');\n  await page.fill('#email', 'a@b.c');\n"
	outcome := apply(t, FixMissingAwait, code, FixContext{})

	require.True(t, outcome.Applied)
	assert.Contains(t, outcome.Code, "  await page.click('#submit');")
	assert.Contains(t, outcome.Code, "  await page.fill('#email', 'a@b.c');")
	assert.NotContains(t, outcome.Code, "await await")
}

func TestMissingAwaitDeclinesWhenAllAwaited(t *testing.T) {
	code := "  await page.click('#submit');\n"
	outcome := apply(t, FixMissingAwait, code, FixContext{})
	assert.False(t, outcome.Applied)
}

func TestNavigationWaitInsertsLoadState(t *testing.T) {
	code := "  await page.goto('/checkout');\n  await page.click('#pay');\n"
	outcome := apply(t, FixNavigationWait, code, FixContext{})

	require.True(t, outcome.Applied)
	assert.Contains(t, outcome.Code,
		"  await page.goto('/checkout');\n  await page.waitForLoadState('networkidle');")
}

func TestNavigationWaitDeclinesWhenAlreadyWaiting(t *testing.T) {
	code := "  await page.goto('/checkout');\n  await page.waitForLoadState('networkidle');\n"
	outcome := apply(t, FixNavigationWait, code, FixContext{})
	assert.False(t, outcome.Applied)
}

func TestTimeoutIncreaseDoubles(t *testing.T) {
	code := "await page.click('#x', { timeout: 5000 });"
	outcome := apply(t, FixTimeoutIncrease, code, FixContext{})

	require.True(t, outcome.Applied)
	assert.Contains(t, outcome.Code, "timeout: 10000")
}

func TestTimeoutIncreaseCapped(t *testing.T) {
	code := "await page.click('#x', { timeout: 60000 });"
	outcome := apply(t, FixTimeoutIncrease, code, FixContext{})
	assert.False(t, outcome.Applied, "a timeout already at the cap has nothing to double")
}

func TestTimeoutIncreaseDeclinesWithoutTimeouts(t *testing.T) {
	outcome := apply(t, FixTimeoutIncrease, "await page.click('#x');", FixContext{})
	assert.False(t, outcome.Applied)
}

func TestWebFirstAssertionRewrite(t *testing.T) {
	code := "expect(await page.locator('#banner').isVisible()).toBe(true);"
	outcome := apply(t, FixWebFirstAssertion, code, FixContext{})

	require.True(t, outcome.Applied)
	assert.Contains(t, outcome.Code, "await expect(page.locator('#banner')).toBeVisible();")
	assert.NotContains(t, outcome.Code, "isVisible()")
}

func TestAddExactMakesTextLocatorsExact(t *testing.T) {
	code := "await page.getByText('Submit').click();"
	outcome := apply(t, FixAddExact, code, FixContext{})

	require.True(t, outcome.Applied)
	assert.Contains(t, outcome.Code, "getByText('Submit', { exact: true })")
}

func TestSelectorRefineStripsNthChild(t *testing.T) {
	code := "await page.click('.items > :nth-child(3) > button');"
	fctx := FixContext{
		ErrorMessage: "Error: element not found: '.items > :nth-child(3) > button'",
	}
	outcome := apply(t, FixSelectorRefine, code, fctx)

	require.True(t, outcome.Applied)
	assert.NotContains(t, outcome.Code, ":nth-child")
	assert.Contains(t, outcome.Code, ".items > button")
}

func TestSelectorRefineDeclinesWithoutSelector(t *testing.T) {
	outcome := apply(t, FixSelectorRefine, "await page.click('#x');",
		FixContext{ErrorMessage: "something unrelated went wrong"})
	assert.False(t, outcome.Applied)
}

func TestSelectorRefineDeclinesWhenSelectorAbsent(t *testing.T) {
	outcome := apply(t, FixSelectorRefine, "await page.click('#other');",
		FixContext{ErrorMessage: "element not found: '#missing > :nth-child(2)'"})
	assert.False(t, outcome.Applied)
}

func TestUnknownFixTypeDeclines(t *testing.T) {
	outcome := apply(t, FixType("mystery"), "code", FixContext{})
	assert.False(t, outcome.Applied)
}

func TestApplyFixHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStrategyApplier().ApplyFix(ctx, FixMissingAwait, "page.click('#x');", FixContext{})
	assert.Error(t, err)
}
