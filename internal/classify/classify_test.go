package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyReportCategories(t *testing.T) {
	tests := []struct {
		name   string
		report string
		want   Category
	}{
		{
			"selector",
			"Error: strict mode violation: locator('.btn') resolved to 3 elements",
			CategorySelector,
		},
		{
			"selector via pattern",
			"TimeoutError: waiting for locator('#submit') to be visible",
			CategorySelector,
		},
		{
			"timing",
			"Test timed out: timeout 30000ms exceeded while waiting, element is not stable",
			CategoryTiming,
		},
		{
			"navigation",
			"page.goto: navigation to \"/checkout\" failed: net::ERR_ABORTED",
			CategoryNavigation,
		},
		{
			"assertion",
			"expect(received).toHaveText(expected), received string \"Cart (2)\"",
			CategoryAssertion,
		},
		{
			"network",
			"request failed: socket hang up (ECONNRESET) after 502 from gateway",
			CategoryNetwork,
		},
		{
			"auth",
			"401 Unauthorized: session expired, authentication required",
			CategoryAuth,
		},
		{
			"env",
			"browser executable not found, command not found: chromium",
			CategoryEnv,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := ClassifyReport(tt.report)
			require.NotNil(t, cls)
			assert.Equal(t, tt.want, cls.Category)
			assert.NotEmpty(t, cls.MatchedKeywords)
			assert.NotEmpty(t, cls.Suggestion)
			assert.GreaterOrEqual(t, cls.Confidence, 0.5)
		})
	}
}

func TestClassifyReportEmptyIsNil(t *testing.T) {
	assert.Nil(t, ClassifyReport(""))
	assert.Nil(t, ClassifyReport("   \n\t"))
}

func TestClassifyReportUnknownFallback(t *testing.T) {
	cls := ClassifyReport("zorp gleeb frobnicated unexpectedly")
	require.NotNil(t, cls)
	assert.Equal(t, CategoryUnknown, cls.Category)
	assert.Less(t, cls.Confidence, 0.5)
	assert.False(t, cls.IsTestIssue)
}

func TestClassifyReportConfidenceGrowsWithEvidence(t *testing.T) {
	one := ClassifyReport("element not found")
	many := ClassifyReport("element not found: locator('#x') detached from the DOM, strict mode violation")
	require.NotNil(t, one)
	require.NotNil(t, many)
	assert.Greater(t, many.Confidence, one.Confidence)
	assert.LessOrEqual(t, many.Confidence, 0.95)
}

func TestClassifyReportInfraIsNotTestIssue(t *testing.T) {
	cls := ClassifyReport("401 Unauthorized: session expired, authentication required")
	require.NotNil(t, cls)
	assert.False(t, cls.IsTestIssue, "auth failures are environment problems, not test bugs")

	cls = ClassifyReport("Error: strict mode violation: locator('.a') resolved to 2 elements")
	require.NotNil(t, cls)
	assert.True(t, cls.IsTestIssue)
}
