package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 120)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.PerPage)
	assert.Equal(t, 120, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset())
}

func TestPaginationOffset(t *testing.T) {
	p := NewPagination(3, 20, 100)
	assert.Equal(t, 40, p.Offset())
	assert.Equal(t, 5, p.TotalPages)
}

func TestParsePageQuery(t *testing.T) {
	page, perPage := ParsePageQuery(url.Values{"page": {"2"}, "per_page": {"25"}})
	assert.Equal(t, 2, page)
	assert.Equal(t, 25, perPage)

	page, perPage = ParsePageQuery(url.Values{"page": {"junk"}})
	assert.Zero(t, page)
	assert.Zero(t, perPage)
}
