package pollinations

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/generation"
)

func TestImageURL(t *testing.T) {
	t.Parallel()
	r := New("", "")

	got := r.ImageURL("Realistic otter, natural colors", generation.ImageSize{Width: 512, Height: 512}, 12345)
	assert.Equal(t,
		"https://image.pollinations.ai/prompt/Realistic%20otter%2C%20natural%20colors?width=512&height=512&nologo=poll&nofeed=yes&model=Flux&seed=12345",
		got)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/prompt/Realistic otter, natural colors", u.Path)
	assert.Equal(t, "12345", u.Query().Get("seed"))
}

func TestImageURLCustomBase(t *testing.T) {
	t.Parallel()
	r := New("http://localhost:9000/", "turbo")

	got := r.ImageURL("a/b", generation.ImageSize{Width: 1920, Height: 1080}, 99999)
	assert.Equal(t, "http://localhost:9000/prompt/a%2Fb?width=1920&height=1080&nologo=poll&nofeed=yes&model=turbo&seed=99999", got)
}
