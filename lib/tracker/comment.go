// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ScoreComment is the comment text posted for an agreed score.
func ScoreComment(score string) string {
	return "Planning poker score: " + score
}

// document is the Atlassian document format body of a comment: one
// paragraph per line of text.
type document struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Content []node `json:"content"`
}

type node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Content []node `json:"content,omitempty"`
}

func newDocument(text string) document {
	doc := document{Type: "doc", Version: 1}
	for _, line := range strings.Split(text, "\n") {
		paragraph := node{Type: "paragraph"}
		if line != "" {
			paragraph.Content = []node{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, paragraph)
	}
	return doc
}

// PostComment adds text as a comment on issueKey.
func (client *Client) PostComment(ctx context.Context, issueKey, text string) error {
	if strings.TrimSpace(issueKey) == "" {
		return errors.New("tracker: issue key is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("tracker: comment is empty")
	}
	body := struct {
		Body document `json:"body"`
	}{Body: newDocument(text)}
	if err := client.post(ctx, "/issue/"+url.PathEscape(issueKey)+"/comment", body, nil); err != nil {
		return err
	}
	client.logger.Info("posted tracker comment", "issue_key", issueKey)
	return nil
}
