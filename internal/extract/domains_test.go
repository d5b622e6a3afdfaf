package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomains(t *testing.T) {
	body := "see http://example.com/x and https://sub.example.org"
	assert.Equal(t, []string{"example.com", "sub.example.org"}, Domains(body))
}

func TestDomainsDeduplicates(t *testing.T) {
	body := "http://example.com/a http://example.com/b https://example.com"
	assert.Equal(t, []string{"example.com"}, Domains(body))
}

func TestDomainsTermination(t *testing.T) {
	// Host ends at a slash, whitespace, or end of string.
	assert.Equal(t, []string{"a.example.com"}, Domains("https://a.example.com/path?q=1"))
	assert.Equal(t, []string{"b.example.com"}, Domains("https://b.example.com next"))
	assert.Equal(t, []string{"c.example.com"}, Domains("https://c.example.com"))
}

func TestDomainsNone(t *testing.T) {
	assert.Nil(t, Domains("no links here, not even ftp://example.com"))
	assert.Nil(t, Domains(""))
}

func TestJoin(t *testing.T) {
	assert.Nil(t, Join(nil))

	joined := Join([]string{"a.com", "b.org"})
	if assert.NotNil(t, joined) {
		assert.Equal(t, "a.com,b.org", *joined)
	}
}
