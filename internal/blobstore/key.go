package blobstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cdback/cdback/internal/common"
)

// key is the opaque (offset, length) pair BlobStore hands back from Put and
// consumes in Get. Any bijective encoding would do; this one is a short
// textual form that's easy to eyeball in logs and snapshot dumps.
type key struct {
	offset int64
	length int64
}

func (k key) String() string {
	return fmt.Sprintf("%d:%d", k.offset, k.length)
}

func parseKey(s string) (key, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return key{}, common.NewKindf(common.KindInvalidInput, "malformed blob key %q", s)
	}
	offset, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return key{}, common.WrapKindf(common.KindInvalidInput, err, "malformed blob key %q", s)
	}
	length, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return key{}, common.WrapKindf(common.KindInvalidInput, err, "malformed blob key %q", s)
	}
	if offset < 0 || length < 0 {
		return key{}, common.NewKindf(common.KindInvalidInput, "malformed blob key %q: negative field", s)
	}
	return key{offset: offset, length: length}, nil
}
