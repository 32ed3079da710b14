/*
Copyright © 2018 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cloudstore offers an optional upload hook for finished output and
// checkpoint containers (§4.10). A destination of the form
// "gs://bucket/key" or "s3://bucket/key" uploads through gocloud.dev/blob;
// a destination with no URL scheme (a bare local path) is a no-op, since
// local paths are already where the engine wrote the file. Any other scheme
// is an error.
package cloudstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// IsRemote reports whether path names a cloud bucket URL rather than a
// local filesystem path, so a caller can decide whether to stage a
// temporary local file before calling Upload.
func IsRemote(path string) bool {
	u, err := url.Parse(path)
	if err != nil {
		return false
	}
	return u.Scheme == "gs" || u.Scheme == "s3"
}

// Upload copies the local file at localPath to dest if dest names a cloud
// bucket URL ("gs://..." or "s3://..."). A dest with no URL scheme is
// treated as an already-local path: Upload does nothing and returns nil.
// Any other scheme returns an "invalid provider" error. The currently
// accepted storage providers are "gs" for Google Cloud Storage and "s3"
// for AWS S3, matching the teacher's cloud.OpenBucket provider set.
func Upload(ctx context.Context, localPath, dest string) error {
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("flowroute/cloudstore: %v", err)
	}
	var bucket *blob.Bucket
	switch u.Scheme {
	case "":
		return nil
	case "gs":
		bucket, err = gsBucket(ctx, u.Host)
	case "s3":
		bucket, err = s3Bucket(ctx, u.Host)
	default:
		return fmt.Errorf("flowroute/cloudstore: invalid provider %s", u.Scheme)
	}
	if err != nil {
		return fmt.Errorf("flowroute/cloudstore: opening bucket %s: %v", dest, err)
	}
	defer bucket.Close()

	key := u.Path
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("flowroute/cloudstore: %v", err)
	}
	defer f.Close()

	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("flowroute/cloudstore: opening writer for %s: %v", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("flowroute/cloudstore: uploading %s: %v", key, err)
	}
	return w.Close()
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s := session.Must(session.NewSession(c))
	return s3blob.OpenBucket(ctx, s, name, nil)
}
