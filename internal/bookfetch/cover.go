package bookfetch

import (
	"context"
	"strings"

	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/session"
)

// minCoverSize is the byte threshold below which a cover candidate is
// treated as a placeholder thumbnail rather than accepted.
const minCoverSize = 10 * 1024

// coverCandidates produces a progressive-upscale sequence: try a larger
// width, then the "large" size-tier substitution, before falling back to
// the original URL untouched.
func coverCandidates(original string) []string {
	candidates := []string{}

	if strings.Contains(original, "w=200") {
		candidates = append(candidates, strings.Replace(original, "w=200", "w=800", 1))
	}
	if strings.Contains(original, "/small/") {
		candidates = append(candidates, strings.Replace(original, "/small/", "/large/", 1))
	}
	candidates = append(candidates, original)
	return candidates
}

// FetchCover retrieves the best available cover image, trying each
// progressively larger candidate URL and accepting the first response at
// or above minCoverSize, falling back to the original URL's response
// otherwise. Returns the accepted URL and its bytes.
func (f *Fetcher) FetchCover(ctx context.Context, coverURL string) (string, []byte, error) {
	if coverURL == "" {
		return "", nil, nil
	}

	var fallbackURL string
	var fallbackBody []byte

	for _, candidate := range coverCandidates(coverURL) {
		if err := f.policy.Wait(ctx, ratelimit.ClassDownload); err != nil {
			return "", nil, err
		}

		var body []byte
		err := ratelimit.DoIndependent(ctx, func() error {
			resp, err := f.sess.Get(ctx, candidate, &session.GetOptions{})
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		})
		if err != nil {
			continue
		}

		if candidate == coverURL {
			fallbackURL, fallbackBody = candidate, body
		}
		if len(body) >= minCoverSize {
			return candidate, body, nil
		}
	}

	return fallbackURL, fallbackBody, nil
}
