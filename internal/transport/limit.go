package transport

import (
	"io"

	"github.com/juju/ratelimit"
)

// rateLimitedReader wraps conn's reader in a token-bucket limiter so a
// single misbehaving client can't starve the rest of the broker's read
// loops by flooding one connection.
func rateLimitedReader(r io.Reader, bytesPerSecond, burst int64) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	bucket := ratelimit.NewBucketWithRate(float64(bytesPerSecond), burst)
	return ratelimit.Reader(r, bucket)
}
