package server

import (
	"strconv"
	"strings"

	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/airislabs/kassa/pkg/db/pagination"
)

// parsePagination binds page_token/page_size query params with sane bounds.
func parsePagination(pageToken, pageSize string) pagination.Pagination {
	page := pagination.Pagination{
		PageToken: strings.TrimSpace(pageToken),
		PageSize:  50,
	}
	if size := parseOptionalInt(pageSize); size != nil {
		switch {
		case *size < 1:
			page.PageSize = 1
		case *size > 250:
			page.PageSize = 250
		default:
			page.PageSize = *size
		}
	}
	return page
}

func parseOptionalInt(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil
	}
	return &parsed
}

// parseEntryTypes splits a comma-separated type filter into ledger entry
// types, dropping empty segments.
func parseEntryTypes(raw string) []walletdomain.EntryType {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	types := make([]walletdomain.EntryType, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		types = append(types, walletdomain.EntryType(p))
	}
	return types
}
