package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationComputesPages(t *testing.T) {
	p := NewPagination(2, 10, 35)

	require.Equal(t, 2, p.Page)
	require.Equal(t, 10, p.PerPage)
	require.Equal(t, 35, p.Total)
	require.Equal(t, 4, p.TotalPages)
	require.Equal(t, 10, p.Offset())
}

func TestNewPaginationClampsInputs(t *testing.T) {
	p := NewPagination(0, 0, 7)
	require.Equal(t, 1, p.Page)
	require.Equal(t, defaultPerPage, p.PerPage)
	require.Equal(t, 0, p.Offset())

	p = NewPagination(1, 10_000, 7)
	require.Equal(t, maxPerPage, p.PerPage)
}

func TestPageFromQuery(t *testing.T) {
	values := url.Values{"page": {"3"}, "per_page": {"50"}}
	page, perPage := PageFromQuery(values)
	require.Equal(t, 3, page)
	require.Equal(t, 50, perPage)

	page, perPage = PageFromQuery(url.Values{"page": {"junk"}, "per_page": {"-2"}})
	require.Equal(t, 1, page)
	require.Equal(t, defaultPerPage, perPage)
}
