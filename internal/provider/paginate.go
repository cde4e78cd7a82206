// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/models"
)

// FetchAll walks every page of a list endpoint and returns the items
// concatenated. params carries endpoint filters such as modified_since;
// limit and page are managed here.
func (c *Client) FetchAll(ctx context.Context, clinic *models.Clinic, path string, params url.Values, pageSize int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = 200
	}

	var all []json.RawMessage
	page := 1
	totalPages := 1

	for page <= totalPages {
		query := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))

		body, err := c.Get(ctx, clinic, path, query)
		if err != nil {
			return nil, err
		}

		var envelope ListEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode page %d of %s: %w", page, path, err)
		}

		all = append(all, envelope.Items...)
		if envelope.Meta.PagesTotal > 0 {
			totalPages = envelope.Meta.PagesTotal
		}
		page++
	}

	logging.Info().
		Str("path", path).
		Int("pages", totalPages).
		Int("items", len(all)).
		Msg("Paginated fetch complete")
	return all, nil
}
