package ghreport

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

func commentHeader(target Target) string {
	var sb strings.Builder
	sb.WriteString(commentMarker + "\n")
	sb.WriteString("## Visual Tests\n\n")
	if target.BaseSHA != "" {
		fmt.Fprintf(&sb, "Comparing `%s` against `%s`",
			domain.ShortSHA(target.HeadSHA), domain.ShortSHA(target.BaseSHA))
		if target.BaseRef != "" {
			fmt.Fprintf(&sb, " (`%s`)", target.BaseRef)
		}
		sb.WriteString(".\n\n")
	} else {
		fmt.Fprintf(&sb, "Generating snapshots for `%s` (no baseline to compare against).\n\n",
			domain.ShortSHA(target.HeadSHA))
	}
	return sb.String()
}

// formatProgressComment renders the in-progress report.
func formatProgressComment(target Target, runURL string, finished []domain.FinishedTest) string {
	var sb strings.Builder
	sb.WriteString(commentHeader(target))
	sb.WriteString("**Status:** in progress\n\n")

	if len(finished) > 0 {
		fmt.Fprintf(&sb, "%d test(s) finished so far:\n\n", len(finished))
		writeResultsTable(&sb, finished)
	}
	if runURL != "" {
		fmt.Fprintf(&sb, "\n[View the run](%s)\n", runURL)
	}
	return sb.String()
}

// formatFinalComment renders the terminal summary, including a
// screenshot-inventory diff when the baseline's screenshots are known.
func formatFinalComment(target Target, res *domain.TestRunResult, baselineScreenshots []string) string {
	tally := res.Tally()

	var sb strings.Builder
	sb.WriteString(commentHeader(target))

	if tally.Differing == 0 {
		sb.WriteString("**Status:** ✓ no visual differences\n\n")
	} else {
		fmt.Fprintf(&sb, "**Status:** ✗ %d test(s) found visual differences\n\n", tally.Differing)
	}

	fmt.Fprintf(&sb, "| Passed | Differing | Flakes | Errored |\n")
	fmt.Fprintf(&sb, "|--------|-----------|--------|--------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d |\n\n", tally.Passed, tally.Differing, tally.Flakes, tally.Errored)

	if tally.Differing > 0 {
		sb.WriteString("<details><summary>Differing tests</summary>\n\n")
		writeResultsTable(&sb, differingOnly(res.Tests))
		sb.WriteString("\n</details>\n\n")
	}

	if diff := screenshotInventoryDiff(target, baselineScreenshots, domain.ScreenshotNames(res.Tests)); diff != "" {
		sb.WriteString("<details><summary>Screenshots added/removed</summary>\n\n")
		fmt.Fprintf(&sb, "```diff\n%s```\n", diff)
		sb.WriteString("\n</details>\n\n")
	}

	if res.URL != "" {
		fmt.Fprintf(&sb, "[View full diffs](%s)\n", res.URL)
	}
	return sb.String()
}

// formatErrorComment renders the could-not-run report.
func formatErrorComment(target Target, runErr error) string {
	var sb strings.Builder
	sb.WriteString(commentHeader(target))
	sb.WriteString("**Status:** ⚠ the visual tests could not run\n\n")
	if runErr != nil {
		fmt.Fprintf(&sb, "```\n%s\n```\n", runErr.Error())
	}
	sb.WriteString("\nThis is an execution failure, not a detected regression. ")
	sb.WriteString("Check the action logs for details.\n")
	return sb.String()
}

func writeResultsTable(sb *strings.Builder, tests []domain.FinishedTest) {
	sb.WriteString("| Test | Result |\n")
	sb.WriteString("|------|--------|\n")
	for _, test := range tests {
		fmt.Fprintf(sb, "| %s | %s |\n", test.Name, test.State)
	}
}

func differingOnly(tests []domain.FinishedTest) []domain.FinishedTest {
	var out []domain.FinishedTest
	for _, test := range tests {
		if test.State == domain.TestDiffering {
			out = append(out, test)
		}
	}
	return out
}

// screenshotInventoryDiff returns a unified diff of the baseline
// screenshot names against the head's, or empty when nothing changed
// or the baseline inventory is unknown.
func screenshotInventoryDiff(target Target, baseline, head []string) string {
	if len(baseline) == 0 {
		return ""
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        asLines(baseline),
		B:        asLines(head),
		FromFile: "screenshots (" + domain.ShortSHA(target.BaseSHA) + ")",
		ToFile:   "screenshots (" + domain.ShortSHA(target.HeadSHA) + ")",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

func asLines(names []string) []string {
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + "\n"
	}
	return lines
}
