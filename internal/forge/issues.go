package forge

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/alanmeadows/shepherd/internal/runner"
)

var (
	checkboxPattern = regexp.MustCompile(`^[-*]\s+\[([ xX])\]\s*(.*)$`)
	struckPattern   = regexp.MustCompile(`^~~.*~~$`)
	// closesPattern captures the reference list after a closing
	// keyword so "Closes #123, #456" yields both numbers.
	closesPattern   = regexp.MustCompile(`(?i)\b(?:clos(?:e|es|ed)|fix(?:es|ed)?|resolv(?:e|es|ed))\b:?\s+((?:#\d+[\s,]*(?:and\s+)?)+)`)
	issueRefPattern = regexp.MustCompile(`#(\d+)`)
)

// IssueIncompleteCriteria returns the unchecked acceptance criteria of
// an issue, each wrapped in 「」, in body order. Closed issues have no
// outstanding criteria by definition. Fetch failures yield nil.
func (s *Service) IssueIncompleteCriteria(ctx context.Context, issueNumber int) []string {
	res := s.run.Run(ctx, runner.Light, s.gh, "issue", "view", strconv.Itoa(issueNumber),
		"--json", "state,body")
	if !res.OK {
		return nil
	}
	var issue struct {
		State string `json:"state"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &issue); err != nil {
		return nil
	}
	if strings.EqualFold(issue.State, "CLOSED") {
		return nil
	}
	return incompleteCriteria(issue.Body)
}

// incompleteCriteria parses Markdown checkbox lines out of an issue
// body. Checked boxes and struck-through items count as complete;
// anything inside a fenced code block is not a criterion at all.
func incompleteCriteria(body string) []string {
	var items []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := checkboxPattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if m[1] != " " {
			continue
		}
		text := strings.TrimSpace(m[2])
		if text == "" || struckPattern.MatchString(text) {
			continue
		}
		items = append(items, "「"+text+"」")
	}
	return items
}

// PRClosesIssues extracts the issue numbers a PR body declares it
// closes ("Closes #123, #456"). Numbers are deduplicated; order
// follows first appearance.
func PRClosesIssues(body string) []string {
	var (
		numbers []string
		seen    = make(map[string]struct{})
	)
	for _, match := range closesPattern.FindAllStringSubmatch(body, -1) {
		for _, ref := range issueRefPattern.FindAllStringSubmatch(match[1], -1) {
			if _, dup := seen[ref[1]]; dup {
				continue
			}
			seen[ref[1]] = struct{}{}
			numbers = append(numbers, ref[1])
		}
	}
	return numbers
}

// LinkedIssues returns the issues the PR's body claims to close.
func (s *Service) LinkedIssues(ctx context.Context, prNumber int) []string {
	body := s.PRBody(ctx, prNumber)
	if body == "" {
		return nil
	}
	return PRClosesIssues(body)
}
