package queue

import (
	"context"
	"encoding/json"

	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/storage"
)

// Resolve extracts the artifact document carried by a queue message. Three
// message shapes are accepted:
//
//   - the document itself,
//   - the document wrapped in a {"payload": ...} envelope,
//   - a {"dir": "path"} reference to an object holding the document.
//
// References require a bucket; resolution failures surface the bucket's
// error unchanged.
func Resolve(ctx context.Context, body []byte, bucket storage.Bucket) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "decoding queue message")
	}

	if raw, ok := envelope["dir"]; ok {
		var path string
		if err := json.Unmarshal(raw, &path); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "decoding document reference")
		}
		if bucket == nil {
			return nil, errors.New(errors.ErrCodeQueue, "message references %q but no bucket is configured", path)
		}
		return bucket.Get(ctx, path)
	}

	if raw, ok := envelope["payload"]; ok {
		return raw, nil
	}
	return body, nil
}
