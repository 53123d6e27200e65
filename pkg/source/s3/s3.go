// Package s3 implements the file access protocol for S3-compatible
// object storage. Buckets are flat key namespaces, so directory sources
// are synthesized: shallow listings lean on the service's delimiter
// support, recursive listings enumerate the key prefix once and build
// the subtree locally.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fluxfs/fluxfs/pkg/listing"
	"github.com/fluxfs/fluxfs/pkg/source"
)

// Protocol resolves s3:// URIs against a configured S3 client.
type Protocol struct {
	client *s3.Client
}

// NewProtocol creates the S3 protocol. The client must already be
// configured with credentials, region and (for S3-compatible services)
// a custom endpoint.
func NewProtocol(client *s3.Client) (*Protocol, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	return &Protocol{client: client}, nil
}

// Schemes implements source.Protocol.
func (p *Protocol) Schemes() []string {
	return []string{"s3"}
}

// Resolve implements source.Protocol.
func (p *Protocol) Resolve(ctx context.Context, uri string) (source.Source, error) {
	return p.resolve(ctx, uri, false)
}

// ResolveDirectory implements source.Protocol.
func (p *Protocol) ResolveDirectory(ctx context.Context, uri string) (source.Source, error) {
	return p.resolve(ctx, uri, true)
}

// OnExit implements source.Protocol. The SDK client needs no explicit
// shutdown.
func (p *Protocol) OnExit() error {
	return nil
}

func (p *Protocol) resolve(ctx context.Context, uri string, directory bool) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if key == "" && !directory {
		return nil, &source.Error{Code: source.ErrUnresolvable, Message: "bucket root is a directory", URI: uri}
	}
	return &Object{proto: p, bucket: bucket, key: key, dir: directory}, nil
}

// ParseURI splits an s3:// URI into bucket and key. Trailing slashes on
// keys are dropped; a bare bucket yields an empty key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", source.NewUnresolvable(uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", source.NewUnresolvable(uri)
	}
	return bucket, strings.Trim(key, "/"), nil
}

// Object is an S3 file source. Directory objects are synthetic: they
// exist whenever keys live beneath their prefix.
type Object struct {
	proto  *Protocol
	bucket string
	key    string // no leading or trailing slash; "" for the bucket root
	dir    bool

	mu        sync.Mutex
	size      int64
	sizeKnown bool
	encoding  string

	parent   *Object
	children []source.Source
}

var (
	_ source.Readable    = (*Object)(nil)
	_ source.Addressable = (*Object)(nil)
)

// Address implements source.Source.
func (o *Object) Address() string {
	if o.key == "" {
		return "s3://" + o.bucket
	}
	return "s3://" + o.bucket + "/" + o.key
}

// Name implements source.Source.
func (o *Object) Name() string {
	if o.key == "" {
		return o.bucket
	}
	return path.Base(o.key)
}

// Folder implements source.Source.
func (o *Object) Folder() string {
	if o.key == "" {
		return "/"
	}
	dir := path.Dir(o.key)
	if dir == "." {
		return "/"
	}
	return "/" + dir
}

// Container implements source.Source.
func (o *Object) Container() string {
	return o.bucket
}

// Version implements source.Source.
func (o *Object) Version() string {
	return ""
}

// Encoding implements source.Source. Populated from the object's
// Content-Encoding once Size has fetched the head; empty before that.
func (o *Object) Encoding() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.encoding
}

// IsDirectory implements source.Source.
func (o *Object) IsDirectory() bool {
	return o.dir
}

// Size implements source.Source. The size of a file object is fetched
// lazily with HeadObject and memoized; directories report zero.
func (o *Object) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if o.dir {
		return 0, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sizeKnown {
		return o.size, nil
	}

	result, err := o.proto.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, source.NewObjectNotFound(o.bucket, o.key)
		}
		return 0, source.NewTransport(o.Address(), err)
	}
	o.size = aws.ToInt64(result.ContentLength)
	o.sizeKnown = true
	o.encoding = aws.ToString(result.ContentEncoding)
	return o.size, nil
}

// Open implements source.Readable.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.dir {
		return nil, fmt.Errorf("cannot open directory %s for reading", o.Address())
	}

	result, err := o.proto.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, source.NewObjectNotFound(o.bucket, o.key)
		}
		return nil, source.NewTransport(o.Address(), err)
	}
	return result.Body, nil
}

// childKey joins a relative path onto the resolution base: the object's
// own key for directories, its parent prefix for files.
func (o *Object) childKey(rel string) string {
	base := o.key
	if !o.dir {
		base = path.Dir(o.key)
		if base == "." {
			base = ""
		}
	}
	joined := path.Join(base, rel)
	if joined == "." {
		return ""
	}
	return strings.Trim(joined, "/")
}

// Resolve implements source.Addressable.
func (o *Object) Resolve(ctx context.Context, rel string) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := o.childKey(rel)
	if key == "" {
		return nil, source.NewInvalidName(rel, "resolves to the bucket root")
	}
	return &Object{proto: o.proto, bucket: o.bucket, key: key}, nil
}

// ResolveDirectory implements source.Addressable.
func (o *Object) ResolveDirectory(ctx context.Context, rel string) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Object{proto: o.proto, bucket: o.bucket, key: o.childKey(rel), dir: true}, nil
}

// Parent implements source.Addressable. The bucket root has no parent.
func (o *Object) Parent() (source.Source, bool) {
	if o.parent != nil {
		return o.parent, true
	}
	if o.key == "" {
		return nil, false
	}
	dir := path.Dir(o.key)
	if dir == "." {
		dir = ""
	}
	return &Object{proto: o.proto, bucket: o.bucket, key: dir, dir: true}, true
}

// Relativize implements source.Addressable.
func (o *Object) Relativize(other source.Source) (string, error) {
	os3, ok := other.(*Object)
	if !ok || os3.bucket != o.bucket {
		return "", fmt.Errorf("%s is not in bucket %s", other.Address(), o.bucket)
	}
	base := o.key
	if !o.dir {
		base = path.Dir(o.key)
		if base == "." {
			base = ""
		}
	}
	if base == "" {
		return os3.key, nil
	}
	rel, ok := strings.CutPrefix(os3.key, base+"/")
	if !ok {
		return "", fmt.Errorf("%s is not beneath %s", other.Address(), o.Address())
	}
	return rel, nil
}

// Listing implements source.Addressable. Shallow listings use the
// service's delimiter support; recursive listings enumerate the prefix
// once and synthesize the subtree, wiring parent pointers and cached
// child listings so descending into the result issues no further
// requests. The listed prefix itself stays uncached, so repeated calls
// on the same source see the latest keys.
func (o *Object) Listing(ctx context.Context, recursive bool) ([]source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !o.dir {
		return nil, fmt.Errorf("%s is not a directory", o.Address())
	}

	if o.children != nil {
		if !recursive {
			return o.children, nil
		}
		return flatten(o.children), nil
	}

	if !recursive {
		return o.listShallow(ctx)
	}
	return o.listRecursive(ctx)
}

func (o *Object) prefix() string {
	if o.key == "" {
		return ""
	}
	return o.key + "/"
}

func (o *Object) listShallow(ctx context.Context) ([]source.Source, error) {
	var out []source.Source

	paginator := s3.NewListObjectsV2Paginator(o.proto.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(o.bucket),
		Prefix:    aws.String(o.prefix()),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, source.NewTransport(o.Address(), err)
		}
		for _, cp := range page.CommonPrefixes {
			key := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			out = append(out, &Object{proto: o.proto, bucket: o.bucket, key: key, dir: true, parent: o})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == o.prefix() {
				// Folder marker for the listed prefix itself.
				continue
			}
			child := &Object{proto: o.proto, bucket: o.bucket, key: key, parent: o}
			child.size = aws.ToInt64(obj.Size)
			child.sizeKnown = true
			out = append(out, child)
		}
	}
	return out, nil
}

func (o *Object) listRecursive(ctx context.Context) ([]source.Source, error) {
	var entries []listing.Entry

	paginator := s3.NewListObjectsV2Paginator(o.proto.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(o.prefix()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, source.NewTransport(o.Address(), err)
		}
		for _, obj := range page.Contents {
			entries = append(entries, listing.Entry{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	root := listing.Tree(o.key, entries)
	byNode := map[*listing.Node]*Object{root: o}
	out := make([]source.Source, 0, len(entries))
	listing.Walk(root, func(n *listing.Node) {
		key := n.Key
		if n.IsDir {
			// Synthesized folders have no backing object; derive the key
			// from the prefix-relative path.
			key = strings.Trim(path.Join(o.key, n.Path), "/")
		}
		parent := byNode[n.Parent]
		obj := &Object{proto: o.proto, bucket: o.bucket, key: key, dir: n.IsDir, parent: parent}
		if n.IsDir {
			obj.children = []source.Source{}
			byNode[n] = obj
		} else {
			obj.size = n.Size
			obj.sizeKnown = true
		}
		if parent != o {
			parent.children = append(parent.children, obj)
		}
		out = append(out, obj)
	})
	return out, nil
}

func flatten(children []source.Source) []source.Source {
	var out []source.Source
	for _, c := range children {
		out = append(out, c)
		if obj, ok := c.(*Object); ok && obj.dir && obj.children != nil {
			out = append(out, flatten(obj.children)...)
		}
	}
	return out
}
