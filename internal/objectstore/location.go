package objectstore

import (
	"net/url"
	"path"
	"strings"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// KeyFromLocation derives the object key from a photo's source location:
//
//	https://host/<key>                 -> <key>
//	https://host/file/<bucket>/<key>   -> <key> (Backblaze B2 friendly URL)
//	s3://<bucket>/<key>                -> <key>
//	<key>                              -> <key>
func KeyFromLocation(location, bucket string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", errkind.Wrap(errkind.ErrValidation, "empty source location", nil)
	}

	if !strings.Contains(location, "://") {
		return strings.TrimPrefix(location, "/"), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", errkind.Wrap(errkind.ErrValidation, "invalid source location "+location, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" && bucket != "" {
		key = strings.TrimPrefix(key, "file/"+bucket+"/")
	}
	if key == "" {
		return "", errkind.Wrap(errkind.ErrValidation, "source location has no object key: "+location, nil)
	}
	return key, nil
}

// LocationForKey builds the source location stored for a newly registered object.
func LocationForKey(publicBaseURL, bucket, key string) string {
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err == nil {
			u.Path = path.Join(u.Path, key)
			return u.String()
		}
	}
	return "s3://" + bucket + "/" + key
}
