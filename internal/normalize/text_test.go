package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Sunshine Daycare", CleanText("  Sunshine  Daycare\n"))
	assert.Equal(t, "ABC 123", CleanText("ＡＢＣ　１２３"))
	assert.Equal(t, "", CleanText(" \t "))
}

func TestIsAbsent(t *testing.T) {
	for _, s := range []string{"", "  ", "N/A", "n/a", " N/a "} {
		assert.True(t, IsAbsent(s), "%q", s)
	}
	for _, s := range []string{"None", "0", "NA Street"} {
		assert.False(t, IsAbsent(s), "%q", s)
	}
}
