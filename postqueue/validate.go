// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"fmt"
	"net/url"
	"unicode/utf8"
)

// Content limits matching the backend's post schema.
const (
	MaxTitleLength       = 200
	MaxTextContentLength = 100_000 // bytes
	MaxLinkURLLength     = 2048
)

// ValidatePostData checks a post against the per-type requirements and
// content limits. It returns a *ValidationError listing every violation, or
// nil when the post is well-formed.
func ValidatePostData(data PostData) error {
	var violations []string

	if !data.ContentType.Valid() {
		violations = append(violations, fmt.Sprintf("unknown content type %q", data.ContentType))
		return &ValidationError{Violations: violations}
	}

	switch data.ContentType {
	case ContentNote:
		if data.TextContent == "" {
			violations = append(violations, "textContent is required for note posts")
		}
	case ContentLink:
		if data.LinkURL == "" {
			violations = append(violations, "linkUrl is required for link posts")
		}
	case ContentImage:
		if data.AttachmentRef == "" {
			violations = append(violations, "image attachment is required for image posts")
		}
	case ContentDocument:
		if data.AttachmentRef == "" {
			violations = append(violations, "document attachment is required for document posts")
		}
	}

	if utf8.RuneCountInString(data.Title) > MaxTitleLength {
		violations = append(violations, fmt.Sprintf("title exceeds %d characters", MaxTitleLength))
	}
	if len(data.TextContent) > MaxTextContentLength {
		violations = append(violations, fmt.Sprintf("textContent exceeds %d bytes", MaxTextContentLength))
	}
	if data.LinkURL != "" {
		if len(data.LinkURL) > MaxLinkURLLength {
			violations = append(violations, fmt.Sprintf("linkUrl exceeds %d characters", MaxLinkURLLength))
		} else if u, err := url.Parse(data.LinkURL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			violations = append(violations, "linkUrl must be an absolute http(s) URL")
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
