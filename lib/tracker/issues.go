// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"strings"
)

// DefaultJQL selects the caller's issues in the open sprints.
const DefaultJQL = "sprint in openSprints() AND assignee = currentUser()"

// DefaultMaxResults caps a search when the caller passes no limit.
const DefaultMaxResults = 20

// Issue is one search hit.
type Issue struct {
	Key      string
	Summary  string
	Status   string
	Type     string
	TypeIcon string
}

// TicketTitle returns the ticket title an imported issue gets:
// "KEY-1: Summary". schema.ParseIssueKey recovers the key from it.
func (issue Issue) TicketTitle() string {
	return issue.Key + ": " + issue.Summary
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields"`
	MaxResults int      `json:"maxResults"`
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
			IssueType struct {
				Name    string `json:"name"`
				IconURL string `json:"iconUrl"`
			} `json:"issuetype"`
		} `json:"fields"`
	} `json:"issues"`
}

// Search runs a JQL query. An empty jql selects DefaultJQL and a
// non-positive maxResults selects DefaultMaxResults.
func (client *Client) Search(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	if strings.TrimSpace(jql) == "" {
		jql = DefaultJQL
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	request := searchRequest{
		JQL:        jql,
		Fields:     []string{"summary", "status", "issuetype"},
		MaxResults: maxResults,
	}
	var response searchResponse
	if err := client.post(ctx, "/search/jql", request, &response); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(response.Issues))
	for _, hit := range response.Issues {
		issues = append(issues, Issue{
			Key:      hit.Key,
			Summary:  hit.Fields.Summary,
			Status:   hit.Fields.Status.Name,
			Type:     hit.Fields.IssueType.Name,
			TypeIcon: hit.Fields.IssueType.IconURL,
		})
	}
	client.logger.Debug("tracker search", "jql", jql, "results", len(issues))
	return issues, nil
}

// FilterJQL narrows base to issues whose summary starts with text or
// whose key is text. An empty text returns base unchanged.
func FilterJQL(base, text string) string {
	text = strings.TrimSpace(text)
	if base == "" {
		base = DefaultJQL
	}
	if text == "" {
		return base
	}
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
	return base + ` AND (summary ~ "` + quoted + `*" OR key = "` + strings.ToUpper(quoted) + `")`
}
