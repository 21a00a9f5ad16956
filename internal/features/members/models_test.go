package members

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerIDRoundTrip(t *testing.T) {
	assert.Equal(t, "tg:123456", PlayerID(123456))

	id, ok := UserIDFromPlayer("tg:123456")
	assert.True(t, ok)
	assert.Equal(t, int64(123456), id)

	for _, bad := range []string{"123456", "tg:", "tg:abc", "tg:-5", "web:42"} {
		_, ok := UserIDFromPlayer(bad)
		assert.False(t, ok, bad)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@ash", (&Member{Username: "ash", FirstName: "Ash"}).DisplayName())
	assert.Equal(t, "Ash Ketchum", (&Member{FirstName: "Ash", LastName: "Ketchum"}).DisplayName())
	assert.Equal(t, "Misty", (&Member{FirstName: "Misty"}).DisplayName())
	assert.Equal(t, "id7", (&Member{UserID: 7}).DisplayName())
	assert.Equal(t, "tg:7", (&Member{UserID: 7}).PlayerID())
}
